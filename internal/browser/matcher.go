// File: internal/browser/matcher.go
package browser

import (
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/tablewise/tablepilot/api/schemas"
)

// matcherTemplate is the in-page collector shared by every strategy. It
// receives a JS expression that yields candidate elements, pins each one
// with a reference attribute, and reports visibility and enablement the
// way the execution layer needs them.
const matcherTemplate = `(() => {
	const candidates = %s;
	const out = [];
	let n = 0;
	for (const el of candidates) {
		if (!(el instanceof Element)) continue;
		const ref = %q + '-' + (n++);
		el.setAttribute(%q, ref);
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
			rect.width > 0 && rect.height > 0;
		const enabled = !el.disabled && el.getAttribute('aria-disabled') !== 'true';
		const text = (el.innerText || el.value || '').trim().slice(0, 80);
		out.push({
			ref: ref,
			visible: visible,
			enabled: enabled,
			desc: '<' + el.tagName.toLowerCase() + '> ' + text,
		});
	}
	return out;
})()`

// buildMatcherScript produces the per-strategy candidate expression and
// wraps it in the collector.
func buildMatcherScript(spec schemas.TargetSpec, refPrefix string) (string, error) {
	var candidates string
	switch spec.Strategy {
	case schemas.StrategyID:
		candidates = fmt.Sprintf(`document.querySelectorAll('[id=' + CSS.escape(%s) + ']')`,
			jsString(strings.TrimPrefix(spec.Value, "#")))
	case schemas.StrategyCSS:
		candidates = fmt.Sprintf(`(() => { try { return document.querySelectorAll(%s); } catch (e) { return []; } })()`,
			jsString(spec.Value))
	case schemas.StrategyText:
		candidates = fmt.Sprintf(`Array.from(document.querySelectorAll('a, button, input, select, label, span, div, [role]'))
			.filter(el => (el.innerText || el.value || '').trim() === %s)`, jsString(spec.Value))
	case schemas.StrategyAria:
		candidates = fmt.Sprintf(`document.querySelectorAll('[aria-label=' + CSS.escape(%s) + ']')`,
			jsString(spec.Value))
	case schemas.StrategyRole:
		role := spec.Role
		if role == "" {
			role = spec.Value
		}
		name := spec.Name
		candidates = fmt.Sprintf(`Array.from(document.querySelectorAll('[role=' + CSS.escape(%s) + ']'))
			.filter(el => %s === '' || (el.getAttribute('aria-label') || el.innerText || '').trim() === %s)`,
			jsString(role), jsString(name), jsString(name))
	default:
		return "", fmt.Errorf("unknown target strategy %q", spec.Strategy)
	}
	return fmt.Sprintf(matcherTemplate, candidates, refPrefix, refAttr), nil
}

// jsString renders s as a safe JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// jsStringArray renders the slice as a JS array literal.
func jsStringArray(items []string) string {
	b, _ := json.Marshal(items)
	return string(b)
}

// isoTimeLayouts are the datetime shapes reservation goals commonly carry.
var isoTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"15:04:05",
	"15:04",
}

// TimeLabelFromISO converts an ISO datetime or clock value into the
// 12-hour label reservation dropdowns use ("19:00" becomes "7:00 PM").
func TimeLabelFromISO(value string) (string, bool) {
	for _, layout := range isoTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("3:04 PM"), true
		}
	}
	return "", false
}
