// File: internal/action/action.go
package action

import (
	"encoding/base64"
	"strings"

	json "github.com/json-iterator/go"
)

// Type is an enumeration of the browser actions the model can request. The
// vocabulary is externally controlled by the model provider, so unknown types
// must be tolerated rather than rejected.
type Type string

const (
	TypeNavigate    Type = "navigate"
	TypeClick       Type = "click"
	TypeDoubleClick Type = "double_click"
	TypeMove        Type = "move"
	TypeType        Type = "type"
	TypeKeypress    Type = "keypress"
	TypeDrag        Type = "drag"
	TypeScroll      Type = "scroll"
	TypeScreenshot  Type = "screenshot"
	TypeWait        Type = "wait"
)

// aliases maps the loose spellings some models emit onto canonical types.
// Matching is case-insensitive.
var aliases = map[string]Type{
	"doubleclick": TypeDoubleClick,
	"hover":       TypeMove,
}

// Action is one model-issued request to perform a browser operation.
// Parameters stay an untyped bag because the model may encode numbers as JSON
// numbers or numeric strings, and may attach keys we have never seen.
// Immutable once constructed.
type Action struct {
	Type   Type           `json:"type"`
	Params map[string]any `json:"parameters,omitempty"`
}

// Canonical returns the action with its type normalized through the alias
// table. Unknown types pass through unchanged; the executor falls back to a
// plain screenshot for those.
func (a Action) Canonical() Action {
	lower := strings.ToLower(string(a.Type))
	if alias, ok := aliases[lower]; ok {
		a.Type = alias
		return a
	}
	a.Type = Type(lower)
	return a
}

// Known reports whether the (canonicalized) type is part of the vocabulary
// the executor implements.
func (a Action) Known() bool {
	switch a.Type {
	case TypeNavigate, TypeClick, TypeDoubleClick, TypeMove, TypeType,
		TypeKeypress, TypeDrag, TypeScroll, TypeScreenshot, TypeWait:
		return true
	}
	return false
}

// Parse decodes a model-emitted action payload of the form
// {"type": <string>, ...parameters}. Every key other than "type" lands in
// the parameter bag.
func Parse(raw []byte) (Action, error) {
	var bag map[string]any
	if err := json.Unmarshal(raw, &bag); err != nil {
		return Action{}, err
	}
	return FromBag(bag), nil
}

// FromBag builds an Action from an already-decoded parameter bag.
func FromBag(bag map[string]any) Action {
	a := Action{Params: make(map[string]any, len(bag))}
	for k, v := range bag {
		if strings.EqualFold(k, "type") {
			if s, ok := v.(string); ok {
				a.Type = Type(s)
			}
			continue
		}
		a.Params[k] = v
	}
	return a.Canonical()
}

// Result is the outcome of executing one action. Screenshot is nil only when
// capture was structurally impossible (surface not attached to a renderable
// context); in every other failure mode the executor degrades to a
// placeholder image instead.
type Result struct {
	Screenshot []byte `json:"screenshot,omitempty"` // raw PNG bytes
	CurrentURL string `json:"current_url,omitempty"`
	Output     string `json:"output,omitempty"`
}

// ScreenshotDataURL encodes the screenshot as a data: URL suitable for the
// tool-output submission, or "" when no screenshot exists.
func (r *Result) ScreenshotDataURL() string {
	if len(r.Screenshot) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(r.Screenshot)
}
