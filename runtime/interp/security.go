package interp

import (
	"strings"
	"sync"

	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/google/uuid"
)

func newSecurityError(format string, args ...interface{}) error {
	return rexxerrors.Newf(rexxerrors.KindSecurity, format, args...)
}

// ReferenceClass is the REQUIRE candidate classification of spec.md §4.6.
type ReferenceClass int

const (
	ClassBuiltin ReferenceClass = iota
	ClassBuiltinSource
	ClassLocalSource
	ClassCentralRegistry
	ClassDirectSource
	ClassUnknown
)

func (c ReferenceClass) String() string {
	switch c {
	case ClassBuiltin:
		return "built-in"
	case ClassBuiltinSource:
		return "built-in-source"
	case ClassLocalSource:
		return "local-source"
	case ClassCentralRegistry:
		return "central-registry"
	case ClassDirectSource:
		return "direct-source"
	default:
		return "unknown"
	}
}

// Risk is the coarse risk tier spec.md §4.8 assigns each reference class.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

// riskOf mirrors the classification's natural risk ordering: built-in and
// built-in-source never touch the filesystem or network, local-source and
// central-registry are medium, direct-source and unknown are high.
func riskOf(class ReferenceClass) Risk {
	switch class {
	case ClassBuiltin, ClassBuiltinSource:
		return RiskLow
	case ClassLocalSource, ClassCentralRegistry:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// PolicyName identifies one of the four named policies spec.md §4.8 defines.
type PolicyName string

const (
	PolicyStrict     PolicyName = "strict"
	PolicyModerate   PolicyName = "moderate"
	PolicyDefault    PolicyName = "default"
	PolicyPermissive PolicyName = "permissive"
)

// ApprovalRequest/ApprovalResponse are the message-based approval exchange
// of spec.md §4.8: the interpreter emits a request with a unique id, awaits
// a response, and records approved references for the process lifetime.
type ApprovalRequest struct {
	RequestID string
	Reference string
	Class     ReferenceClass
	Risk      Risk
}

type ApprovalResponse struct {
	RequestID string
	Approved  bool
	Reason    string
}

// ApprovalExchanger lets a host collaborator answer an approval request;
// SecurityPolicy calls it only when a policy's rules require explicit
// approval (moderate/default for unknown references).
type ApprovalExchanger func(req ApprovalRequest) (ApprovalResponse, error)

// SecurityPolicy implements spec.md §4.8: reference classification, a
// configurable blocklist, and the per-process-lifetime approved-reference
// set. Grounded on the teacher's runtime/vault access-control bookkeeping
// style (a mutex-protected map plus an explicit "process lifetime" comment
// convention), without adopting vault's HMAC/secret-scrubbing machinery —
// no secret material crosses a transport boundary in this subsystem, so
// that part of vault has no analogue here (see DESIGN.md).
type SecurityPolicy struct {
	name      PolicyName
	blocklist map[string]bool

	mu       sync.Mutex
	approved map[string]bool

	Exchange ApprovalExchanger
}

// NewSecurityPolicy returns a policy with the given name and an empty
// blocklist; use Blocklist to populate it.
func NewSecurityPolicy(name PolicyName) *SecurityPolicy {
	return &SecurityPolicy{
		name:      name,
		blocklist: make(map[string]bool),
		approved:  make(map[string]bool),
	}
}

// Blocklist adds references (case-insensitive, exact match on the
// normalized reference string) to the configurable deny list.
func (p *SecurityPolicy) Blocklist(refs ...string) {
	for _, r := range refs {
		p.blocklist[strings.ToLower(r)] = true
	}
}

func (p *SecurityPolicy) isBlocked(ref string) bool {
	return p.blocklist[strings.ToLower(ref)]
}

// ClassifyReference applies spec.md §4.6's candidate classification table
// to a single (already comma-split, whitespace-trimmed) REQUIRE candidate.
func ClassifyReference(ref string, isKnownBuiltin func(name string) bool) ReferenceClass {
	switch {
	case strings.Contains(ref, "./src/") || strings.Contains(ref, "../src/"):
		return ClassBuiltinSource
	case strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../"):
		return ClassLocalSource
	case strings.HasPrefix(ref, "central:"):
		return ClassCentralRegistry
	case !strings.Contains(ref, "/") && !strings.Contains(ref, "./") && isKnownBuiltin != nil && isKnownBuiltin(ref):
		return ClassBuiltin
	case isDirectSourceShape(ref):
		return ClassDirectSource
	default:
		return ClassUnknown
	}
}

// isDirectSourceShape checks the structural `source-host/owner/name(@version)?`
// syntactic shape spec.md §4.8 requires be validated before any I/O for a
// direct-source reference, independent of whether the host actually exists.
func isDirectSourceShape(ref string) bool {
	body, _, _ := strings.Cut(ref, "@")
	parts := strings.Split(body, "/")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return !strings.HasPrefix(ref, "./") && !strings.HasPrefix(ref, "../") && !strings.HasPrefix(ref, "central:")
}

// Authorize enforces spec.md §4.8's per-policy rules for a classified
// reference, returning nil if the load may proceed. A blocklist hit always
// fails regardless of policy, with the exact "on security blocklist"
// substring the error-message contract requires.
func (p *SecurityPolicy) Authorize(ref string, class ReferenceClass) error {
	if p.isBlocked(ref) {
		return newSecurityError("reference %q is on security blocklist", ref)
	}

	p.mu.Lock()
	alreadyApproved := p.approved[strings.ToLower(ref)]
	p.mu.Unlock()
	if alreadyApproved {
		return nil
	}

	switch p.name {
	case PolicyStrict:
		switch class {
		case ClassBuiltin, ClassBuiltinSource, ClassCentralRegistry:
			return nil
		default:
			return newSecurityError("strict security policy denies %s reference %q", class, ref)
		}

	case PolicyModerate, PolicyDefault:
		switch class {
		case ClassBuiltin, ClassBuiltinSource, ClassLocalSource, ClassCentralRegistry, ClassDirectSource:
			return nil
		default:
			return p.requestApproval(ref, class)
		}

	case PolicyPermissive:
		return nil

	default:
		return newSecurityError("unknown security policy %q", p.name)
	}
}

func (p *SecurityPolicy) requestApproval(ref string, class ReferenceClass) error {
	if p.Exchange == nil {
		return newSecurityError("%s reference %q requires approval, but no approval channel is configured", class, ref)
	}
	resp, err := p.Exchange(ApprovalRequest{
		RequestID: uuid.NewString(),
		Reference: ref,
		Class:     class,
		Risk:      riskOf(class),
	})
	if err != nil {
		return err
	}
	if !resp.Approved {
		return newSecurityError("reference %q denied: %s", ref, resp.Reason)
	}
	p.mu.Lock()
	p.approved[strings.ToLower(ref)] = true
	p.mu.Unlock()
	return nil
}
