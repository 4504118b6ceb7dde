package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/streamchat/pkg/conversation"
	"github.com/go-go-golems/streamchat/pkg/status"
	"github.com/rs/zerolog/log"
)

func roleLabel(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return userStyle.Render("you")
	case conversation.RoleAssistant:
		return botStyle.Render("assistant")
	default:
		return systemStyle.Render("system")
	}
}

// markdown renders finalized assistant messages. Streaming text is shown raw so partial
// markup does not jump around while it grows.
type markdown struct {
	width    int
	renderer *glamour.TermRenderer
}

func newMarkdown(width int) *markdown {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Str("component", "ui").Msg("markdown renderer unavailable")
		return &markdown{width: width}
	}
	return &markdown{width: width, renderer: r}
}

func (md *markdown) render(m conversation.Message) string {
	if md == nil || md.renderer == nil || m.Role != conversation.RoleAssistant || m.IsStreaming {
		return m.Content
	}
	out, err := md.renderer.Render(m.Content)
	if err != nil {
		return m.Content
	}
	return strings.Trim(out, "\n")
}

func renderMessage(m conversation.Message, md *markdown) string {
	body := md.render(m)
	if m.Role == conversation.RoleSystem {
		body = systemStyle.Render(body)
	}
	if m.IsStreaming {
		body += composeStyle.Render("▍")
	}
	return roleLabel(m.Role) + "\n" + body
}

func renderBadges(badges []status.Badge, report status.Report, err error) string {
	parts := make([]string, 0, len(badges))
	for _, b := range badges {
		switch {
		case report == nil || err != nil:
			parts = append(parts, badgeUnknown.Render("○ "+b.Label))
		case report.Enabled(b.Path):
			parts = append(parts, badgeOnStyle.Render("● "+b.Label))
		default:
			parts = append(parts, badgeOffStyle.Render("● "+b.Label))
		}
	}
	return strings.Join(parts, "  ")
}
