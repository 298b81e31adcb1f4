// Package jsrewrite rewrites third-party JavaScript so that it runs behind the proxy.
//
// Two passes exist and they do not compose: a script is rewritten by exactly one
// of them, exactly once. RenameLocation moves every use of the global location
// binding onto LocationAlias; WrapPostMessage routes the arguments of every
// x.postMessage(...) call through the client-side shim.
//
// Both passes parse the source, collect edits against the original text and
// materialize the result in one step. Input that does not parse cleanly is
// re-parsed in tolerant mode, so broken scripts are still rewritten on a best
// effort basis.
package jsrewrite

import (
	"errors"
	"strings"
)

// Identifiers injected into rewritten scripts. The client-side shim defines them.
const (
	LocationAlias         = "__mcopLocation"
	PostMessageMsgWrap    = "_mcopPreparePostMessageMsg"
	PostMessageOriginWrap = "_mcopPreparePostMessageOrigin"
)

const (
	locationToken    = "location"
	postMessageToken = "postMessage"
)

// ErrParse is returned when neither the strict nor the tolerant parse succeeds.
var ErrParse = errors.New("jsrewrite: unparseable script")

// Mode selects a rewrite pass.
type Mode int

const (
	ModeLocation Mode = iota + 1
	ModePostMessage
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeLocation:
		return "location"
	case ModePostMessage:
		return "postmessage"
	default:
		return "none"
	}
}

// ParseMode maps a configuration value to a Mode. ok is false for "none",
// the empty string and unknown values.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(s) {
	case "location":
		return ModeLocation, true
	case "postmessage":
		return ModePostMessage, true
	}
	return 0, false
}

// Result describes one rewrite.
type Result struct {
	Output   string
	Edits    int  // edits applied to the source
	Tolerant bool // the strict parse failed and the tolerant parse was used
}

// Rewrite runs the pass selected by mode over src.
func Rewrite(src string, mode Mode) (Result, error) {
	switch mode {
	case ModeLocation:
		return renameLocation(src)
	case ModePostMessage:
		return wrapPostMessage(src)
	}
	return Result{Output: src}, nil
}

// RenameLocation replaces the global location binding with LocationAlias.
// It never fails: a script that cannot be parsed at all is returned unchanged.
func RenameLocation(src string) string {
	res, err := renameLocation(src)
	if err != nil {
		return src
	}
	return res.Output
}

// WrapPostMessage wraps the message and target origin arguments of every
// x.postMessage(...) call with the shim helpers. The transfer list, when
// present, is left alone.
func WrapPostMessage(src string) (string, error) {
	res, err := wrapPostMessage(src)
	if err != nil {
		return src, err
	}
	return res.Output, nil
}
