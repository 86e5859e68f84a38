package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsHelpers is the prelude injected into every evaluated script. It builds
// the frame list (main document first, then same-origin child documents in
// depth-first order) and the query helpers that pierce open shadow roots.
// Cross-origin frames throw on contentDocument access and are skipped, which
// matches the frame enumeration the resolver is specified against.
const jsHelpers = `
const __docs = (() => {
	const acc = [];
	const walk = (doc) => {
		acc.push(doc);
		for (const f of doc.querySelectorAll('iframe, frame')) {
			try { if (f.contentDocument) walk(f.contentDocument); } catch (e) {}
		}
	};
	walk(document);
	return acc;
})();
const __allElements = (root, acc) => {
	for (const el of root.querySelectorAll('*')) {
		acc.push(el);
		if (el.shadowRoot) __allElements(el.shadowRoot, acc);
	}
	return acc;
};
const __deepQueryAll = (doc, sel) => {
	if (sel.startsWith('text=')) {
		const want = sel.slice(5).trim().toLowerCase();
		const hits = __allElements(doc, []).filter(el =>
			(el.textContent || '').trim().toLowerCase() === want);
		return hits.filter(el => !hits.some(o => o !== el && el.contains(o)));
	}
	const out = [];
	const collect = (root) => {
		try { out.push(...root.querySelectorAll(sel)); } catch (e) {}
		for (const el of root.querySelectorAll('*')) {
			if (el.shadowRoot) collect(el.shadowRoot);
		}
	};
	collect(doc);
	return out;
};
const __visible = (el) => {
	if (!el || !el.getClientRects().length) return false;
	const view = el.ownerDocument.defaultView;
	const st = view.getComputedStyle(el);
	if (st.display === 'none' || st.visibility === 'hidden' || st.opacity === '0') return false;
	const r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
};
const __firstVisible = (doc, sel) => {
	for (const el of __deepQueryAll(doc, sel)) {
		if (__visible(el)) return el;
	}
	return null;
};
const __cssEscape = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/"/g, '\\"');
const __selectorFor = (el) => {
	const tid = el.getAttribute('data-testid');
	if (tid) return '[data-testid="' + tid + '"]';
	if (el.id) return '#' + __cssEscape(el.id);
	const name = el.getAttribute('name');
	if (name) return el.tagName.toLowerCase() + '[name="' + name + '"]';
	const text = (el.textContent || '').trim();
	if (text && text.length <= 64) return 'text=' + text;
	return '';
};
const __roleSelectors = {
	button: 'button, input[type="button"], input[type="submit"], [role="button"]',
	link: 'a[href], [role="link"]'
};
const __byRole = (doc, role, name) => {
	const sel = __roleSelectors[role];
	if (!sel) return null;
	const want = name.trim().toLowerCase();
	for (const el of __deepQueryAll(doc, sel)) {
		if (!__visible(el)) continue;
		const acc = (el.getAttribute('aria-label') || el.value || el.textContent || '').trim().toLowerCase();
		if (acc === want || (want && acc.includes(want))) return el;
	}
	return null;
};
const __byLabel = (doc, name) => {
	const want = name.trim().toLowerCase();
	for (const lb of __deepQueryAll(doc, 'label')) {
		const txt = (lb.textContent || '').trim().toLowerCase();
		if (txt !== want && !txt.includes(want)) continue;
		let ctl = lb.control;
		if (!ctl && lb.htmlFor) ctl = doc.getElementById(lb.htmlFor);
		if (!ctl) ctl = lb.querySelector('input, select, textarea');
		if (ctl && __visible(ctl)) return ctl;
	}
	return null;
};
const __byPlaceholder = (doc, name) => {
	const want = name.trim().toLowerCase();
	for (const el of __deepQueryAll(doc, 'input[placeholder], textarea[placeholder]')) {
		const ph = (el.getAttribute('placeholder') || '').trim().toLowerCase();
		if ((ph === want || (want && ph.includes(want))) && __visible(el)) return el;
	}
	return null;
};
`

// frameScript wraps body in an IIFE with the helper prelude and the target
// frame's document bound to doc.
func frameScript(frame int, body string) string {
	return fmt.Sprintf(`(() => {%s
const doc = __docs[%d];
if (!doc) return null;
%s
})()`, jsHelpers, frame, body)
}

// pageScript wraps body with the prelude only; body works over __docs itself.
func pageScript(body string) string {
	return fmt.Sprintf(`(() => {%s
%s
})()`, jsHelpers, body)
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func frameCountScript() string {
	return pageScript(`return __docs.length;`)
}

func queryVisibleScript(frame int, selector string) string {
	return frameScript(frame, fmt.Sprintf(`return !!__firstVisible(doc, %s);`, jsString(selector)))
}

// lookupScript finds an element by one of the semantic helpers and returns a
// selector for it, or "" when nothing matched.
func lookupScript(frame int, helper string, args ...string) string {
	call := helper + "(doc"
	for _, a := range args {
		call += ", " + jsString(a)
	}
	call += ")"
	return frameScript(frame, fmt.Sprintf(`
const el = %s;
return el ? __selectorFor(el) : '';`, call))
}

func candidatesScript(frame int) string {
	return frameScript(frame, `
const sel = 'a, button, input, select, textarea, [role="button"], [role="link"], [onclick], [data-testid]';
const seen = new Set();
const out = [];
for (const el of __deepQueryAll(doc, sel)) {
	if (seen.has(el) || !__visible(el)) continue;
	seen.add(el);
	out.push({
		tag: el.tagName.toLowerCase(),
		text: (el.textContent || el.value || '').trim().slice(0, 80),
		id: el.id || '',
		ariaLabel: el.getAttribute('aria-label') || '',
		placeholder: el.getAttribute('placeholder') || '',
		testId: el.getAttribute('data-testid') || ''
	});
}
return out;`)
}

func containsTextScript(text string) string {
	return pageScript(fmt.Sprintf(`
const want = %s;
for (const d of __docs) {
	if (d.body && d.body.innerText && d.body.innerText.includes(want)) return true;
	for (const el of __allElements(d, [])) {
		if (el.shadowRoot && el.shadowRoot.textContent && el.shadowRoot.textContent.includes(want)) return true;
	}
}
return false;`, jsString(text)))
}

func clickScript(frame int, selector string) string {
	return frameScript(frame, fmt.Sprintf(`
const el = __firstVisible(doc, %s);
if (!el) return false;
el.scrollIntoView({block: 'center', inline: 'center'});
el.click();
return true;`, jsString(selector)))
}

// setValueScript assigns a control's value and fires the input and change
// events so framework-bound state observes the edit.
func setValueScript(frame int, selector, value string) string {
	return frameScript(frame, fmt.Sprintf(`
const el = __firstVisible(doc, %s);
if (!el) return false;
el.scrollIntoView({block: 'center', inline: 'center'});
el.focus();
el.value = %s;
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return true;`, jsString(selector), jsString(value)))
}

// selectOptionScript picks a <select> option by value or visible text.
func selectOptionScript(frame int, selector, value string) string {
	return frameScript(frame, fmt.Sprintf(`
const el = __firstVisible(doc, %s);
if (!el || el.tagName.toLowerCase() !== 'select') return false;
const want = %s;
const wantLower = want.trim().toLowerCase();
let matched = false;
for (const opt of el.options) {
	if (opt.value === want || (opt.textContent || '').trim().toLowerCase() === wantLower) {
		el.value = opt.value;
		matched = true;
		break;
	}
}
if (!matched) return false;
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return true;`, jsString(selector), jsString(value)))
}

func setCheckedScript(frame int, selector string, checked bool) string {
	return frameScript(frame, fmt.Sprintf(`
const el = __firstVisible(doc, %s);
if (!el) return false;
if (el.checked !== %t) {
	el.scrollIntoView({block: 'center', inline: 'center'});
	el.click();
}
if (el.checked !== %t) {
	el.checked = %t;
	el.dispatchEvent(new Event('change', {bubbles: true}));
}
return true;`, jsString(selector), checked, checked, checked))
}
