// File: internal/executor/resolver/resolver.go

// Package resolver builds the injected JavaScript that maps model-estimated
// points and text labels onto the most plausible interactive DOM element.
// Model-estimated coordinates are frequently a few pixels off precise control
// boundaries, so the literal topmost node at a point is the wrong target more
// often than not.
package resolver

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// ClickOutcome is the JSON result returned by the click resolution script.
type ClickOutcome struct {
	Clicked bool   `json:"clicked"`
	Refused bool   `json:"refused"`
	Reason  string `json:"reason,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Text    string `json:"text,omitempty"`
}

// TextClickOutcome is the JSON result returned by the text-based resolution
// script used for search submission.
type TextClickOutcome struct {
	Clicked bool    `json:"clicked"`
	Score   float64 `json:"score"`
	Tag     string  `json:"tag,omitempty"`
	Text    string  `json:"text,omitempty"`
}

// CornerEnvelopeSize is the side length of the top-left region in which
// generic clicks are disproportionately likely to be mis-clicks and require
// a menu-labeled control to be found before dispatching.
const CornerEnvelopeSize = 80.0

// jsString renders a Go string as a safe JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// resolverHelpers is shared by the click and text scripts: visibility and
// interactivity checks, the consent-overlay search, and the realistic event
// sequence dispatcher.
const resolverHelpers = `
	const isVisible = (el) => {
		if (!el || !el.getBoundingClientRect) return false;
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};

	const isInteractive = (el) => {
		if (!el || el.nodeType !== 1) return false;
		const tag = el.tagName;
		if (tag === 'A' && el.hasAttribute('href')) return true;
		if (tag === 'BUTTON' || tag === 'INPUT' || tag === 'TEXTAREA' || tag === 'SELECT' || tag === 'LABEL') return true;
		const role = el.getAttribute('role');
		if (role === 'button' || role === 'link' || role === 'menuitem' || role === 'tab' || role === 'checkbox') return true;
		if (el.onclick || el.hasAttribute('onclick')) return true;
		const tabindex = el.getAttribute('tabindex');
		if (tabindex !== null && tabindex !== '-1') return true;
		return false;
	};

	// Prefer the nearest interactive ancestor over the literal node.
	const interactiveAncestor = (el) => {
		let cur = el;
		for (let depth = 0; cur && depth < 8; depth++) {
			if (isInteractive(cur)) return cur;
			cur = cur.parentElement;
		}
		return null;
	};

	const consentContainerPattern = /cookie|consent|gdpr|privacy|datenschutz|tracking/i;
	const consentAcceptPattern = /^(accept( all)?|agree|allow( all)?|ok(ay)?|got it|continue|i understand|yes)/i;

	// If the element sits inside a large, visible cookie/consent banner,
	// prefer its accept control: the single highest-value heuristic for
	// keeping automated browsing unblocked on real sites.
	const consentOverride = (el) => {
		let cur = el;
		for (let depth = 0; cur && depth < 10; depth++) {
			const marker = ((cur.id || '') + ' ' + (cur.className || '')).toString();
			const hint = marker + ' ' + (cur.getAttribute && (cur.getAttribute('aria-label') || '') || '');
			if (consentContainerPattern.test(hint) && isVisible(cur)) {
				const rect = cur.getBoundingClientRect();
				const area = rect.width * rect.height;
				// Only trust containers big enough to be banners.
				if (area > 0.05 * window.innerWidth * window.innerHeight) {
					const controls = cur.querySelectorAll('button, a, [role=button], input[type=submit], input[type=button]');
					for (const control of controls) {
						const label = ((control.textContent || '') + ' ' + (control.value || '') + ' ' + (control.getAttribute('aria-label') || '')).trim();
						if (isVisible(control) && consentAcceptPattern.test(label)) {
							return control;
						}
					}
				}
			}
			cur = cur.parentElement;
		}
		return null;
	};

	const menuControlPattern = /menu|nav|hamburger|drawer|burger|toggle/i;

	// A corner click only goes through when a visibly icon-sized,
	// menu-labeled control exists near the point.
	const findMenuControl = (x, y) => {
		const controls = document.querySelectorAll('button, a, [role=button], [aria-label], [onclick]');
		for (const control of controls) {
			if (!isVisible(control)) continue;
			const rect = control.getBoundingClientRect();
			if (rect.width > 72 || rect.height > 72) continue;
			const cx = rect.left + rect.width / 2;
			const cy = rect.top + rect.height / 2;
			if (Math.hypot(cx - x, cy - y) > 96) continue;
			const hint = ((control.className || '') + ' ' + (control.id || '') + ' ' +
				(control.getAttribute('aria-label') || '') + ' ' + (control.textContent || '')).toString();
			if (menuControlPattern.test(hint)) return control;
		}
		return null;
	};

	// Dispatch a realistic event sequence at the element's own center point,
	// not the original estimated point: small hit-targets respond to their
	// center far more reliably.
	const dispatchClickSequence = (el, double) => {
		const rect = el.getBoundingClientRect();
		const cx = rect.left + rect.width / 2;
		const cy = rect.top + rect.height / 2;
		const base = { bubbles: true, cancelable: true, view: window, clientX: cx, clientY: cy, button: 0 };
		if (el.focus) { try { el.focus(); } catch (e) {} }
		el.dispatchEvent(new MouseEvent('mousedown', base));
		el.dispatchEvent(new MouseEvent('mouseup', base));
		el.dispatchEvent(new MouseEvent('click', Object.assign({ detail: 1 }, base)));
		if (double) {
			el.dispatchEvent(new MouseEvent('mousedown', base));
			el.dispatchEvent(new MouseEvent('mouseup', base));
			el.dispatchEvent(new MouseEvent('click', Object.assign({ detail: 2 }, base)));
			el.dispatchEvent(new MouseEvent('dblclick', Object.assign({ detail: 2 }, base)));
		}
		return { cx: cx, cy: cy };
	};

	const brief = (el) => (el.textContent || el.value || '').trim().substring(0, 64);
`

// ClickScript builds the injected expression that resolves and clicks the
// most plausible interactive element at the given viewport point. The result
// unmarshals into ClickOutcome.
func ClickScript(x, y float64, double bool) string {
	return fmt.Sprintf(`(function() {
	const px = %g, py = %g, wantDouble = %t;
	%s

	// Corner-menu guardrail: refuse generic top-left clicks outright when no
	// menu-labeled control is found nearby.
	if (px <= %g && py <= %g) {
		const menu = findMenuControl(px, py);
		if (!menu) {
			return { clicked: false, refused: true, reason: 'top-left corner click refused: no menu-labeled control nearby' };
		}
		dispatchClickSequence(menu, wantDouble);
		return { clicked: true, tag: menu.tagName, text: brief(menu) };
	}

	// Enumerate all elements overlapping the point, not just the topmost.
	const stack = (document.elementsFromPoint(px, py) || []).filter(isVisible);
	if (stack.length === 0) {
		return { clicked: false, reason: 'no visible element at point' };
	}

	let target = null;
	for (const el of stack) {
		const candidate = interactiveAncestor(el);
		if (candidate && isVisible(candidate)) { target = candidate; break; }
	}
	if (!target) target = stack[0];

	const consent = consentOverride(target);
	if (consent) target = consent;

	dispatchClickSequence(target, wantDouble);
	return { clicked: true, tag: target.tagName, text: brief(target) };
})()`, x, y, double, resolverHelpers, CornerEnvelopeSize, CornerEnvelopeSize)
}

// TextClickScript builds the expression that resolves a click target by
// visible text. Candidates are scored by exact match, then substring
// containment scaled by the text-length ratio, then word overlap; ties break
// by proximity to the hint point. Used for programmatic search submission.
func TextClickScript(label string, hintX, hintY float64) string {
	return fmt.Sprintf(`(function() {
	const wanted = %s.trim().toLowerCase();
	const hx = %g, hy = %g;
	%s

	if (!wanted) return { clicked: false, score: 0 };

	const wantedWords = wanted.split(/\s+/).filter(w => w.length > 0);
	const candidates = document.querySelectorAll('button, a, [role=button], [role=link], input[type=submit], input[type=button], [onclick], li, span, div[tabindex]');

	let best = null, bestScore = 0, bestDist = Infinity;
	for (const el of candidates) {
		if (!isVisible(el)) continue;
		const text = ((el.textContent || '') + ' ' + (el.value || '') + ' ' + (el.getAttribute('aria-label') || '')).trim().toLowerCase();
		if (!text || text.length > 200) continue;

		let score = 0;
		if (text === wanted) {
			score = 100;
		} else if (text.includes(wanted)) {
			score = 60 * (wanted.length / text.length);
		} else {
			const words = text.split(/\s+/);
			let overlap = 0;
			for (const w of wantedWords) { if (words.includes(w)) overlap++; }
			if (overlap > 0) score = 30 * (overlap / wantedWords.length);
		}
		if (score <= 0) continue;

		const rect = el.getBoundingClientRect();
		const dist = Math.hypot(rect.left + rect.width / 2 - hx, rect.top + rect.height / 2 - hy);
		if (score > bestScore || (score === bestScore && dist < bestDist)) {
			best = el; bestScore = score; bestDist = dist;
		}
	}

	if (!best) return { clicked: false, score: 0 };
	dispatchClickSequence(best, false);
	return { clicked: true, score: bestScore, tag: best.tagName, text: brief(best) };
})()`, jsString(label), hintX, hintY, resolverHelpers)
}

// MoveScript dispatches hover events at the literal point; no target
// resolution is needed because nothing is activated.
func MoveScript(x, y float64) string {
	return fmt.Sprintf(`(function() {
	const px = %g, py = %g;
	const el = document.elementFromPoint(px, py);
	if (!el) return { moved: false };
	const base = { bubbles: true, cancelable: true, view: window, clientX: px, clientY: py };
	el.dispatchEvent(new MouseEvent('mousemove', base));
	el.dispatchEvent(new MouseEvent('mouseover', base));
	el.dispatchEvent(new MouseEvent('mouseenter', base));
	return { moved: true, tag: el.tagName };
})()`, x, y)
}
