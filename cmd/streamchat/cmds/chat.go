package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/streamchat/pkg/conversation"
	"github.com/go-go-golems/streamchat/pkg/eventbus"
	"github.com/go-go-golems/streamchat/pkg/session"
	"github.com/go-go-golems/streamchat/pkg/status"
	"github.com/go-go-golems/streamchat/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type ChatCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ChatCommand)(nil)

type ChatSettings struct {
	Widget              bool `glazed:"widget"`
	Plain               bool `glazed:"plain"`
	Mirror              bool `glazed:"mirror"`
	DrainTimeoutSeconds int  `glazed:"drain-timeout-seconds"`
}

func NewChatCommand() (*ChatCommand, error) {
	chatSection, err := session.NewSettingsSection()
	if err != nil {
		return nil, errors.Wrap(err, "build chat section")
	}
	busSection, err := eventbus.NewSettingsSection()
	if err != nil {
		return nil, errors.Wrap(err, "build eventbus section")
	}

	desc := cmds.NewCommandDescription(
		"chat",
		cmds.WithShort("Chat with a streaming assistant endpoint"),
		cmds.WithLong("Opens a chat session. Uses a terminal UI when attached to a terminal and a plain line mode otherwise."),
		cmds.WithFlags(
			fields.New("widget", fields.TypeBool, fields.WithHelp("Start in the compact widget view"), fields.WithDefault(false)),
			fields.New("plain", fields.TypeBool, fields.WithHelp("Force line mode"), fields.WithDefault(false)),
			fields.New("mirror", fields.TypeBool, fields.WithHelp("Publish finalized messages to the event bus"), fields.WithDefault(false)),
			fields.New("drain-timeout-seconds", fields.TypeInteger, fields.WithHelp("Line mode: how long to wait for the last reply after input ends"), fields.WithDefault(30)),
		),
		cmds.WithSections(chatSection, busSection),
	)
	return &ChatCommand{CommandDescription: desc}, nil
}

func (c *ChatCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, w io.Writer) error {
	s := &ChatSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "decode chat command settings")
	}
	chatSettings := session.DefaultSettings()
	if err := parsedLayers.DecodeSectionInto(session.SettingsSlug, &chatSettings); err != nil {
		return errors.Wrap(err, "decode chat settings")
	}
	busSettings := eventbus.DefaultSettings()
	if err := parsedLayers.DecodeSectionInto(eventbus.SettingsSlug, &busSettings); err != nil {
		return errors.Wrap(err, "decode eventbus settings")
	}

	ctrl, _ := session.NewFromSettings(chatSettings)
	defer func() { _ = ctrl.Shutdown() }()
	log.Info().Str("component", "chat").Str("endpoint", chatSettings.Endpoint).Str("client_id", ctrl.ClientID()).Msg("starting chat session")

	if s.Mirror {
		bus, err := eventbus.Build(busSettings)
		if err != nil {
			return errors.Wrap(err, "build event bus")
		}
		defer func() { _ = bus.Close() }()
		unsubscribe := eventbus.NewMirror(bus.Publisher, bus.Topic, ctrl.ClientID()).Attach(ctrl)
		defer unsubscribe()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A failed first connect is already in the transcript as a system message.
	if err := ctrl.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("component", "chat").Msg("initial connect failed")
	}

	interactive := !s.Plain && isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
	if interactive {
		return runTUI(ctx, ctrl, chatSettings, s.Widget)
	}
	return runLines(ctx, ctrl, os.Stdin, w, time.Duration(s.DrainTimeoutSeconds)*time.Second)
}

func runTUI(ctx context.Context, ctrl *session.Controller, cs session.Settings, widget bool) error {
	mode := ui.ViewPage
	if widget {
		mode = ui.ViewWidget
	}
	p := tea.NewProgram(ui.NewModel(ctrl, ui.WithViewMode(mode)), tea.WithAltScreen(), tea.WithContext(ctx))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	unsubscribe := ui.Attach(p, ctrl)
	defer unsubscribe()

	if url := strings.TrimSpace(cs.StatusURL); url != "" {
		poller := status.NewPoller(url, cs.StatusInterval(), nil)
		eg.Go(func() error {
			poller.Run(ctx, func(r status.Report, err error) {
				if err != nil {
					log.Debug().Err(err).Str("component", "chat").Msg("status poll failed")
				}
				p.Send(ui.StatusMsg{Report: r, Err: err})
			})
			return nil
		})
	}

	return eg.Wait()
}

// runLines reads one message per line from in. "/reset" clears the conversation and
// "/quit" ends the session. At end of input it waits up to drain for the pending reply.
func runLines(ctx context.Context, ctrl *session.Controller, in io.Reader, w io.Writer, drain time.Duration) error {
	printer := ui.NewLinePrinter(w)
	unsubscribe := ctrl.Subscribe(printer.Observe)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return errors.Wrap(err, "read input")
					}
				default:
				}
				waitForReply(ctx, ctrl, drain)
				return printer.Err()
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				return printer.Err()
			case "/reset":
				ctrl.Reset()
				continue
			}
			if err := ctrl.Submit(line); err != nil && !errors.Is(err, session.ErrEmptyInput) {
				_, _ = fmt.Fprintf(w, "! %v\n", err)
			}
		}
	}
}

// waitForReply blocks until the last user message has a finished answer, the session is no
// longer active, or timeout passes.
func waitForReply(ctx context.Context, ctrl *session.Controller, timeout time.Duration) {
	settled := make(chan struct{})
	var once sync.Once
	unsubscribe := ctrl.Subscribe(func(s session.State) {
		if replySettled(s) {
			once.Do(func() { close(settled) })
		}
	})
	defer unsubscribe()

	select {
	case <-settled:
	case <-ctx.Done():
	case <-time.After(timeout):
		log.Warn().Str("component", "chat").Dur("timeout", timeout).Msg("gave up waiting for reply")
	}
}

func replySettled(s session.State) bool {
	if s.Phase != session.PhaseActive {
		return true
	}
	if s.IsComposing {
		return false
	}
	n := len(s.Messages)
	if n == 0 {
		return true
	}
	last := s.Messages[n-1]
	return last.Role != conversation.RoleUser && !last.IsStreaming
}
