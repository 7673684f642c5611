package main

import (
	"fmt"
	"io"
	"strings"

	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

func colorize(text, color string, useColor bool) string {
	if !useColor {
		return text
	}
	return color + text + colorReset
}

// usageError carries a hint alongside the failing message, the way the
// teacher's CLIError separates "what broke" from "how to fix it".
type usageError struct {
	Message string
	Hint    string
}

func (e *usageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// formatError prints err to w, with REXX-kind-aware detail for a
// *rexxerrors.RexxError and a plain "Error: " line for everything else.
func formatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}
	switch e := err.(type) {
	case *usageError:
		fmt.Fprintf(w, "%s%s\n", colorize("Error: ", colorRed, useColor), e.Message)
		if e.Hint != "" {
			fmt.Fprintf(w, "%s%s\n", colorize("Hint: ", colorYellow, useColor), e.Hint)
		}
	case *rexxerrors.RexxError:
		fmt.Fprintf(w, "%s%s: %s\n", colorize("Error: ", colorRed, useColor), e.Kind, e.Message)
		if e.Line > 0 {
			fmt.Fprintf(w, "%sat line %d%s\n", colorGray, e.Line, colorReset)
		}
		if e.Cause != nil {
			fmt.Fprintf(w, "%scaused by: %v%s\n", colorGray, e.Cause, colorReset)
		}
	default:
		fmt.Fprintf(w, "%s%s\n", colorize("Error: ", colorRed, useColor), err.Error())
	}
}
