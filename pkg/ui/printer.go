package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-go-golems/streamchat/pkg/conversation"
	"github.com/go-go-golems/streamchat/pkg/session"
)

// LinePrinter writes a session transcript as plain text, printing only what changed
// between snapshots. Streamed replies grow on one line and end with a newline on complete.
type LinePrinter struct {
	w io.Writer

	mu      sync.Mutex
	phase   session.Phase
	started bool
	printed map[uint64]int
	done    map[uint64]bool
	open    bool
	openID  uint64
	err     error
}

func NewLinePrinter(w io.Writer) *LinePrinter {
	return &LinePrinter{
		w:       w,
		printed: map[uint64]int{},
		done:    map[uint64]bool{},
	}
}

// Err returns the first write error.
func (p *LinePrinter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *LinePrinter) Observe(s session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || s.Phase != p.phase {
		if p.started || s.Phase != session.PhaseIdle {
			p.endLine()
			p.writef("* %s\n", s.Phase)
		}
		p.phase = s.Phase
		p.started = true
	}

	if len(s.Messages) == 0 {
		if len(p.printed) > 0 {
			p.endLine()
			p.writef("* conversation reset\n")
		}
		clear(p.printed)
		clear(p.done)
		return
	}

	for _, m := range s.Messages {
		if p.done[m.ID] {
			continue
		}
		n, seen := p.printed[m.ID]
		wrote := false
		switch {
		case !seen:
			p.endLine()
			p.writef("%s %s", prefix(m.Role), m.Content)
			wrote = true
		case len(m.Content) > n:
			if !p.open || p.openID != m.ID {
				p.endLine()
				p.writef("%s …", prefix(m.Role))
			}
			p.writef("%s", m.Content[n:])
			wrote = true
		}
		p.printed[m.ID] = len(m.Content)
		if m.IsStreaming {
			// a line closed by later output stays closed until the message grows again
			if wrote {
				p.open, p.openID = true, m.ID
			}
			continue
		}
		if !seen || (p.open && p.openID == m.ID) {
			p.writef("\n")
			p.open = false
		}
		p.done[m.ID] = true
	}
}

func (p *LinePrinter) endLine() {
	if p.open {
		p.writef("\n")
		p.open = false
	}
}

func (p *LinePrinter) writef(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func prefix(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return ">"
	case conversation.RoleAssistant:
		return "<"
	default:
		return "!"
	}
}
