// File: internal/executor/scripts.go
package executor

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/hexlane/operant/internal/action"
)

// jsString renders a Go string as a safe JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// typeOutcome is the JSON result of the typing script.
type typeOutcome struct {
	Typed  bool   `json:"typed"`
	Reason string `json:"reason,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// typeScript appends text to the focused editable element through its native
// input path (prototype value setter + input event), so framework-bound
// inputs observe the change. Nothing focused is a soft failure.
func typeScript(text string) string {
	return fmt.Sprintf(`(function() {
	const text = %s;
	const el = document.activeElement;
	if (!el || el === document.body) {
		return { typed: false, reason: 'no focused element' };
	}
	const tag = el.tagName;
	if (tag === 'INPUT' || tag === 'TEXTAREA') {
		const proto = tag === 'INPUT' ? window.HTMLInputElement.prototype : window.HTMLTextAreaElement.prototype;
		const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
		setter.call(el, (el.value || '') + text);
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return { typed: true, tag: tag };
	}
	if (el.isContentEditable) {
		document.execCommand('insertText', false, text);
		return { typed: true, tag: tag };
	}
	return { typed: false, reason: 'focused element is not editable', tag: tag };
})()`, jsString(text))
}

// keySpec describes one synthetic key event.
type keySpec struct {
	Key     string
	Code    string
	KeyCode int
	// ExecCommand replaces the key event entirely when set.
	ExecCommand string
}

// shortcutTable maps the small fixed set of recognized shortcuts onto their
// synthetic event (or editing command). Lookup keys are normalized to
// lowercase with '+' separators sorted out by the caller.
var shortcutTable = map[string]keySpec{
	"ctrl+a":    {ExecCommand: "selectAll"},
	"cmd+a":     {ExecCommand: "selectAll"},
	"ctrl+c":    {ExecCommand: "copy"},
	"cmd+c":     {ExecCommand: "copy"},
	"ctrl+v":    {ExecCommand: "paste"},
	"cmd+v":     {ExecCommand: "paste"},
	"ctrl+z":    {ExecCommand: "undo"},
	"cmd+z":     {ExecCommand: "undo"},
	"enter":     {Key: "Enter", Code: "Enter", KeyCode: 13},
	"return":    {Key: "Enter", Code: "Enter", KeyCode: 13},
	"escape":    {Key: "Escape", Code: "Escape", KeyCode: 27},
	"esc":       {Key: "Escape", Code: "Escape", KeyCode: 27},
	"tab":       {Key: "Tab", Code: "Tab", KeyCode: 9},
	"backspace": {Key: "Backspace", Code: "Backspace", KeyCode: 8},
	"delete":    {Key: "Delete", Code: "Delete", KeyCode: 46},
}

// resolveKeySpec maps a model-issued key list onto a keySpec. Combos arrive
// either as one "ctrl+a" string or as separate list entries. Unmapped
// combinations fall back to a generic key event using the last key.
func resolveKeySpec(keys []string) keySpec {
	normalized := make([]string, 0, len(keys))
	for _, k := range keys {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(k)))
	}
	joined := strings.Join(normalized, "+")
	if spec, ok := shortcutTable[joined]; ok {
		return spec
	}
	if len(normalized) == 1 {
		if spec, ok := shortcutTable[normalized[0]]; ok {
			return spec
		}
	}
	// Generic fallback: a key event for the last key in the list.
	last := keys[len(keys)-1]
	return keySpec{Key: last, Code: last}
}

// keypressScript dispatches the synthetic key event (or editing command) on
// the focused element.
func keypressScript(spec keySpec) string {
	if spec.ExecCommand != "" {
		return fmt.Sprintf(`(function() {
	const ok = document.execCommand(%s, false, null);
	return { pressed: ok };
})()`, jsString(spec.ExecCommand))
	}
	return fmt.Sprintf(`(function() {
	const el = document.activeElement || document.body;
	const init = { key: %s, code: %s, keyCode: %d, which: %d, bubbles: true, cancelable: true };
	el.dispatchEvent(new KeyboardEvent('keydown', init));
	el.dispatchEvent(new KeyboardEvent('keypress', init));
	el.dispatchEvent(new KeyboardEvent('keyup', init));
	return { pressed: true };
})()`, jsString(spec.Key), jsString(spec.Code), spec.KeyCode, spec.KeyCode)
}

// dragSteps is the number of interpolated mousemove events between the first
// and the last path point.
const dragSteps = 5

// dragScript synthesizes a down, interpolated moves, up sequence between the
// first and last points of the path.
func dragScript(start, end action.PathPoint) string {
	return fmt.Sprintf(`(function() {
	const sx = %g, sy = %g, ex = %g, ey = %g, steps = %d;
	const at = (x, y) => document.elementFromPoint(x, y) || document.body;
	const fire = (type, x, y) => {
		at(x, y).dispatchEvent(new MouseEvent(type, {
			bubbles: true, cancelable: true, view: window, clientX: x, clientY: y, button: 0
		}));
	};
	fire('mousedown', sx, sy);
	for (let i = 1; i <= steps; i++) {
		const t = i / steps;
		fire('mousemove', sx + (ex - sx) * t, sy + (ey - sy) * t);
	}
	fire('mouseup', ex, ey);
	return { dragged: true };
})()`, start.X, start.Y, end.X, end.Y, dragSteps)
}

// scrollScript scrolls the window by the given deltas.
func scrollScript(dx, dy float64) string {
	return fmt.Sprintf(`(function() {
	window.scrollBy(%g, %g);
	return { x: window.scrollX, y: window.scrollY };
})()`, dx, dy)
}

// readyStateScript reports whether the document has reached at least an
// interactive state.
const readyStateScript = `(function() {
	return document.readyState === 'interactive' || document.readyState === 'complete';
})()`

// paintConfirmScript resolves after two animation-frame round-trips, which
// guarantees at least one confirmed paint since the previous DOM mutation.
const paintConfirmScript = `new Promise(resolve => {
	requestAnimationFrame(() => requestAnimationFrame(() => resolve(true)));
})`

// hasContentScript reports whether the surface has any document loaded
// beyond the initial blank page.
const hasContentScript = `(function() {
	return window.location.href !== 'about:blank' || (document.body && document.body.childElementCount > 0);
})()`
