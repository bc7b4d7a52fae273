package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
	"github.com/ysmood/gson"
)

// Session is one request's exclusive browser tab inside its own incognito
// context. It implements page.Page and must be returned with Pool.Release.
type Session struct {
	inst      *instance
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
}

var _ page.Page = (*Session)(nil)

// newSession opens an incognito context and a configured tab on inst.
// Everything set up here is in place before the first navigation.
func newSession(inst *instance, opts Options) (*Session, error) {
	incognito, err := inst.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	s := &Session{inst: inst, incognito: incognito}

	p, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = p

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.ViewportWidth,
			Height:            opts.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			slog.Warn("session: set viewport failed", "error", err)
		}
	}
	if opts.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: opts.AcceptLanguage,
		}); err != nil {
			slog.Warn("session: set user agent failed", "error", err)
		}
	}
	if needsLanguageHeader(opts) {
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeaders(map[string]string{"Accept-Language": opts.AcceptLanguage}),
		}).Call(p); err != nil {
			slog.Warn("session: set Accept-Language header failed", "error", err)
		}
	}
	if opts.Stealth {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("session: stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	s.router = startHijack(p, blockedSet(opts.BlockedResourceTypes), opts.BlockTrackers)
	return s, nil
}

// close tears the session down: hijack router, then page, then incognito context.
// It reports whether every step succeeded.
func (s *Session) close() bool {
	ok := true
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			slog.Debug("session: stop hijack router", "error", err)
			ok = false
		}
		s.router = nil
	}
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			slog.Debug("session: close page", "error", err)
			ok = false
		}
		s.page = nil
	}
	if s.incognito != nil {
		if err := s.incognito.Close(); err != nil {
			slog.Debug("session: close incognito context", "error", err)
			ok = false
		}
		s.incognito = nil
	}
	return ok
}

// Navigate loads url and waits for the "load" or "DOMContentLoaded" lifecycle event.
// The waiter is registered before navigating so a fast load is not missed.
func (s *Session) Navigate(ctx context.Context, url, waitUntil string) error {
	p := s.page.Context(ctx)

	event := proto.PageLifecycleEventNameLoad
	if waitUntil == page.WaitDOMContentLoaded {
		event = proto.PageLifecycleEventNameDOMContentLoaded
	}
	wait := p.WaitNavigation(event)

	if err := p.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

// WaitAttached retries until selector matches or ctx is done.
func (s *Session) WaitAttached(ctx context.Context, selector string) error {
	_, err := s.page.Context(ctx).Element(selector)
	return err
}

func (s *Session) first(ctx context.Context, selector string) (*rod.Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	if els.Empty() {
		return nil, fmt.Errorf("%w: %s", page.ErrNotFound, selector)
	}
	return els.First(), nil
}

// Read returns the innerText or innerHTML of the first match without waiting for it.
func (s *Session) Read(ctx context.Context, selector, source string) (string, error) {
	el, err := s.first(ctx, selector)
	if err != nil {
		return "", err
	}
	if source == fields.SourceHTML {
		res, err := el.Eval(`() => this.innerHTML`)
		if err != nil {
			return "", err
		}
		return res.Value.Str(), nil
	}
	return el.Text()
}

const rowsJS = `(row, title, value) => Array.from(this.querySelectorAll(row)).map(r => {
	const pick = sel => {
		if (!sel) return "";
		const el = r.querySelector(sel);
		return el ? el.innerText.trim() : "";
	};
	return {title: pick(title), value: pick(value), text: r.innerText || ""};
})`

// Rows reads title/value pairs from every row of the first container match.
func (s *Session) Rows(ctx context.Context, container, row, title, value string) ([]models.Row, error) {
	el, err := s.first(ctx, container)
	if err != nil {
		return nil, err
	}
	res, err := el.Eval(rowsJS, row, title, value)
	if err != nil {
		return nil, err
	}

	items := res.Value.Arr()
	rows := make([]models.Row, 0, len(items))
	for _, item := range items {
		r := models.Row{Title: item.Get("title").Str(), Value: item.Get("value").Str()}
		if r.Title == "" && r.Value == "" {
			r = fields.SplitRowText(item.Get("text").Str())
		}
		rows = append(rows, r)
	}
	return rows, nil
}

const findTextJS = `(sel, texts) => {
	const els = Array.from(document.querySelectorAll(sel));
	for (const t of texts) {
		const needle = t.toLowerCase();
		for (let i = 0; i < els.length; i++) {
			const rect = els[i].getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) continue;
			if ((els[i].innerText || "").toLowerCase().includes(needle)) return {index: i, text: t};
		}
	}
	return {index: -1, text: ""};
}`

// ClickText clicks the first visible element matching selector whose text
// contains one of texts. A real mouse click is tried first, then a DOM click.
func (s *Session) ClickText(ctx context.Context, selector string, texts []string) (string, error) {
	p := s.page.Context(ctx)
	res, err := p.Eval(findTextJS, selector, texts)
	if err != nil {
		return "", err
	}
	idx := res.Value.Get("index").Int()
	matched := res.Value.Get("text").Str()
	if idx < 0 {
		return "", nil
	}

	els, err := p.Elements(selector)
	if err != nil {
		return "", err
	}
	if idx >= len(els) {
		return "", errors.New("clickable element detached before click")
	}
	el := els[idx]
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		if _, jsErr := el.Eval(`() => this.click()`); jsErr != nil {
			return "", fmt.Errorf("click %q: %w", matched, err)
		}
	}
	return matched, nil
}

// Location returns window.location.href.
func (s *Session) Location(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// HTML returns the serialized DOM.
func (s *Session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// needsLanguageHeader reports whether Accept-Language must be sent as an extra
// header. The user agent override already carries it when a UA is set.
func needsLanguageHeader(opts Options) bool {
	return opts.UserAgent == "" && opts.AcceptLanguage != ""
}

// toHeaders converts a plain map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeaders(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
