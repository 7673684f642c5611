// Package interp is the tree-walking interpreter core: variable store,
// expression evaluator, control-flow driver, ADDRESS router, REQUIRE
// loader, security policy, and tracer. Each *Interpreter owns its own
// instance of every component here; nothing in this package is a bare
// package-level global except the metadata registry, which is
// intentionally process-wide (see registry.go).
package interp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aledsdavies/rexxgo/core/invariant"
	"github.com/aledsdavies/rexxgo/core/types"
)

// Store is the variable store: an ordered name -> Value mapping with
// call-frame semantics for subroutines. Frames form a trie the way the
// teacher's vault scope trie does (current frame walks to its parent on a
// miss, all the way to the root/global frame), generalized from vault's
// decorator-nesting scopes to REXX call frames: a plain CALL shares the
// caller's frame outright (frame == caller's frame, no new node in the
// trie), while an external script call opens a fresh frame whose parent is
// the global frame. The language has no PROCEDURE instruction, so a
// subroutine never gets a frame of its own.
type Store struct {
	mu     sync.RWMutex
	frames map[string]*frame // frame id -> frame
	root   *frame
}

// frame is one scope level in the store's trie. vars preserves insertion
// order the way types.Object does, since SAY/JOIN-style rendering of a
// whole stem relies on source order, not map iteration order.
type frame struct {
	id     string
	parent string // empty for the root frame
	keys   []string
	vars   map[string]types.Value
}

const rootFrameID = "global"

// NewStore returns a store with only the root (global) frame, seeded with
// the two special variables the spec requires always be present.
func NewStore() *Store {
	root := &frame{id: rootFrameID, vars: make(map[string]types.Value)}
	s := &Store{frames: map[string]*frame{rootFrameID: root}, root: root}
	s.setIn(root, "RC", types.Number(0))
	s.setIn(root, "RESULT", types.Undefined)
	return s
}

// CanonicalName uppercases name the way every language-level identifier
// outside string context is canonicalized per the store's case contract;
// stem-qualified paths are joined with "." before canonicalization.
func CanonicalName(name string, path []string) string {
	full := name
	if len(path) > 0 {
		full = full + "." + strings.Join(path, ".")
	}
	return strings.ToUpper(full)
}

// OpenFrame creates a new, empty call frame under id whose lookup parent
// is always the root (global) frame. Callers that want to *share* the
// caller's frame keep using the caller's frame id directly rather than
// calling OpenFrame at all. OpenFrame is used by external script calls.
func (s *Store) OpenFrame(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invariant.Precondition(id != "", "frame id must not be empty")
	invariant.Precondition(s.frames[id] == nil, "frame %q already open", id)
	s.frames[id] = &frame{id: id, parent: rootFrameID, vars: make(map[string]types.Value)}
}

// CloseFrame discards a frame opened by OpenFrame. Closing the root frame
// is a programming error.
func (s *Store) CloseFrame(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invariant.Precondition(id != rootFrameID, "cannot close the root frame")
	delete(s.frames, id)
}

// RootFrame returns the id of the always-present global frame.
func (s *Store) RootFrame() string { return rootFrameID }

func (s *Store) setIn(f *frame, name string, val types.Value) {
	if _, exists := f.vars[name]; !exists {
		f.keys = append(f.keys, name)
	}
	f.vars[name] = val
}

// Set assigns name (canonicalized, dot-path joined) within frameID.
func (s *Store) Set(frameID, name string, path []string, val types.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frames[frameID]
	invariant.NotNil(f, "frameID")
	s.setIn(f, CanonicalName(name, path), val)
}

// Get looks up name starting at frameID and walking parent links to the
// root, the way LookupVariable walks vault's pathStack trie. Returns
// types.Undefined and false when the name is not found anywhere on the
// chain; the evaluator is responsible for turning an unresolved bare
// identifier into its own uppercased name text per classic REXX's
// "uninitialized variable evaluates to its own name" rule — Get only
// reports presence.
func (s *Store) Get(frameID, name string, path []string) (types.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := CanonicalName(name, path)
	visited := make(map[string]bool)
	id := frameID
	for id != "" {
		if visited[id] {
			return types.Undefined, false
		}
		visited[id] = true
		f, ok := s.frames[id]
		if !ok {
			return types.Undefined, false
		}
		if v, ok := f.vars[key]; ok {
			return v, true
		}
		if id == rootFrameID {
			break
		}
		id = f.parent
	}
	return types.Undefined, false
}

// Drop removes name from frameID only (classic REXX DROP never reaches
// into a parent frame).
func (s *Store) Drop(frameID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frames[frameID]
	invariant.NotNil(f, "frameID")
	key := strings.ToUpper(name)
	if _, ok := f.vars[key]; !ok {
		return
	}
	delete(f.vars, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// StemKeys returns the sorted-by-insertion set of canonical keys under
// frameID (walking to root, root entries first) whose key equals stem or
// begins with stem+".", enumerating a compound variable's elements.
func (s *Store) StemKeys(frameID, stem string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := strings.ToUpper(stem)
	var out []string
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	chain := []string{}
	id := frameID
	for id != "" && !visited[id] {
		visited[id] = true
		chain = append(chain, id)
		f, ok := s.frames[id]
		if !ok || id == rootFrameID {
			break
		}
		id = f.parent
	}
	// Walk root-to-current so outer declarations list first, matching the
	// source-order expectation of JOIN-over-a-stem builtins.
	for i := len(chain) - 1; i >= 0; i-- {
		f := s.frames[chain[i]]
		for _, k := range f.keys {
			if seen[k] {
				continue
			}
			if k == prefix || strings.HasPrefix(k, prefix+".") {
				out = append(out, k)
				seen[k] = true
			}
		}
	}
	return out
}

// SetRC and SetResult update the two always-present special variables in
// the root frame: RC/RESULT are global per spec.md §3, not frame-scoped,
// so every CALL/ADDRESS outcome is visible to the whole program regardless
// of which frame issued it.
func (s *Store) SetRC(code float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setIn(s.root, "RC", types.Number(code))
}

func (s *Store) SetResult(v types.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setIn(s.root, "RESULT", v)
}

// String renders a frame's variables for debugging/tracer dumps.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.root
	parts := make([]string, 0, len(f.keys))
	for _, k := range f.keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, f.vars[k].String()))
	}
	return strings.Join(parts, " ")
}
