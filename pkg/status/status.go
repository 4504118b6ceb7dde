// Package status polls the assistant's status endpoint, which reports a nested map of agent
// availability flags.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Report is the decoded status document.
type Report map[string]any

// Lookup resolves a dotted path such as "main_agent.odoo_agent.enabled".
func (r Report) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Enabled reports whether the value at path is boolean true.
func (r Report) Enabled(path string) bool {
	v, ok := r.Lookup(path)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Leaf is one scalar value of a report.
type Leaf struct {
	Path  string
	Value any
}

// Leaves flattens the report into dotted paths, sorted by path.
func (r Report) Leaves() []Leaf {
	var out []Leaf
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		m, ok := v.(map[string]any)
		if !ok {
			out = append(out, Leaf{Path: prefix, Value: v})
			return
		}
		for k, child := range m {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			walk(p, child)
		}
	}
	walk("", map[string]any(r))
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Badge names one availability flag shown to the user.
type Badge struct {
	Label string
	Path  string
}

// DefaultBadges are the flags shown on the chat page.
var DefaultBadges = []Badge{
	{Label: "Odoo", Path: "main_agent.odoo_agent.enabled"},
	{Label: "Email", Path: "main_agent.email_agent.authenticated"},
	{Label: "WhatsApp", Path: "main_agent.whatsapp_agent.enabled"},
}

type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
}

func NewPoller(url string, interval time.Duration, client *http.Client) *Poller {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{url: url, interval: interval, client: client}
}

// Fetch performs one status request.
func (p *Poller) Fetch(ctx context.Context) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build status request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "status request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("status request: unexpected status %d", resp.StatusCode)
	}
	var r Report
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode status")
	}
	return r, nil
}

// Run fetches immediately and then on every interval until ctx is done, handing each result
// to fn. Failures are passed to fn as well; polling continues.
func (p *Poller) Run(ctx context.Context, fn func(Report, error)) {
	pLog := log.With().Str("component", "status").Str("url", p.url).Logger()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		r, err := p.Fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			pLog.Warn().Err(err).Msg("failed to fetch status")
		} else {
			pLog.Debug().Int("keys", len(r)).Msg("status fetched")
		}
		fn(r, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
