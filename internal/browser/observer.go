// File: internal/browser/observer.go
// The observer turns the live page into an immutable PageState snapshot.
// Extraction runs as a single in-page script so the snapshot is
// internally consistent; the observer never mutates the page.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/agent"
)

// maxVisibleText caps the visible-text excerpt carried in a snapshot.
const maxVisibleText = 4000

const extractionScript = `(() => {
	const describe = (el) => {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
			rect.width > 0 && rect.height > 0;
		let selector = el.tagName.toLowerCase();
		if (el.id) {
			selector = '#' + CSS.escape(el.id);
		} else if (el.name) {
			selector = selector + '[name=' + CSS.escape(el.name) + ']';
		} else if (el.classList.length > 0) {
			selector = selector + '.' + Array.from(el.classList).slice(0, 2).map(CSS.escape).join('.');
		}
		const d = {
			tag: el.tagName.toLowerCase(),
			text: (el.innerText || el.value || '').trim().slice(0, 120),
			id: el.id || '',
			name: el.name || '',
			aria_label: el.getAttribute('aria-label') || '',
			class: el.className && el.className.baseVal === undefined ? el.className : '',
			type: el.getAttribute('type') || '',
			placeholder: el.getAttribute('placeholder') || '',
			href: el.href || '',
			is_visible: visible,
			is_enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
			position: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
			selector: selector,
		};
		if (el.tagName === 'SELECT') {
			d.options = Array.from(el.options).map(o => o.text.trim()).slice(0, 50);
		}
		return d;
	};
	const collect = (sel) => Array.from(document.querySelectorAll(sel)).map(describe);

	return {
		url: window.location.href,
		title: document.title,
		buttons: collect('button, input[type="submit"], input[type="button"]'),
		text_inputs: collect('input[type="text"], input[type="search"], input[type="email"], input[type="tel"], input[type="date"], input:not([type]), textarea'),
		select_dropdowns: collect('select'),
		links: collect('a[href]').slice(0, 60),
		clickable_elements: collect('[role="button"], [onclick]').slice(0, 40),
		form_elements: collect('form input, form select, form textarea').slice(0, 60),
		visible_text: (document.body ? document.body.innerText : '').slice(0, %d),
	};
})()`

// PageObserver produces fresh PageState snapshots from a live session.
type PageObserver struct {
	session *Session
	logger  *zap.Logger
}

var _ agent.Observer = (*PageObserver)(nil)

func NewPageObserver(session *Session, logger *zap.Logger) *PageObserver {
	return &PageObserver{
		session: session,
		logger:  logger.Named("observer"),
	}
}

// Observe extracts the current snapshot.
func (o *PageObserver) Observe(ctx context.Context) (schemas.PageState, error) {
	script := fmt.Sprintf(extractionScript, maxVisibleText)

	var page schemas.PageState
	err := o.session.run(ctx, chromedp.Evaluate(script, &page, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(false)
	}))
	if err != nil {
		return schemas.PageState{}, fmt.Errorf("page extraction failed: %w", err)
	}
	page.CapturedAt = time.Now().UTC()

	o.logger.Debug("Page observed",
		zap.String("url", page.URL),
		zap.Int("buttons", len(page.Buttons)),
		zap.Int("inputs", len(page.TextInputs)),
		zap.Int("links", len(page.Links)))
	return page, nil
}
