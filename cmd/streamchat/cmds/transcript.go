package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/streamchat/pkg/eventbus"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect the transcript published by chat --mirror",
}

// AddTranscriptCommands registers the transcript command group on root.
func AddTranscriptCommands(root *cobra.Command) {
	tailCmd, err := NewTranscriptTailCommand()
	cobra.CheckErr(err)
	cobraTailCmd, err := cli.BuildCobraCommand(tailCmd)
	cobra.CheckErr(err)

	transcriptCmd.AddCommand(cobraTailCmd)
	root.AddCommand(transcriptCmd)
}

type TranscriptTailCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*TranscriptTailCommand)(nil)

type TranscriptTailSettings struct {
	JSON bool `glazed:"json"`
}

func NewTranscriptTailCommand() (*TranscriptTailCommand, error) {
	busSection, err := eventbus.NewSettingsSection()
	if err != nil {
		return nil, errors.Wrap(err, "build eventbus section")
	}
	desc := cmds.NewCommandDescription(
		"tail",
		cmds.WithShort("Follow finalized messages on the Redis transcript stream"),
		cmds.WithFlags(
			fields.New("json", fields.TypeBool, fields.WithHelp("Print raw JSON records"), fields.WithDefault(false)),
		),
		cmds.WithSections(busSection),
	)
	return &TranscriptTailCommand{CommandDescription: desc}, nil
}

func (c *TranscriptTailCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, w io.Writer) error {
	s := &TranscriptTailSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "decode tail settings")
	}
	busSettings := eventbus.DefaultSettings()
	if err := parsedLayers.DecodeSectionInto(eventbus.SettingsSlug, &busSettings); err != nil {
		return errors.Wrap(err, "decode eventbus settings")
	}
	// An in-memory bus lives inside one process, so there is nothing to follow from here.
	if !busSettings.RedisEnabled {
		return errors.New("transcript tail needs --eventbus-redis-enabled")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eventbus.EnsureGroupAtTail(ctx, busSettings); err != nil {
		return err
	}
	bus, err := eventbus.Build(busSettings)
	if err != nil {
		return errors.Wrap(err, "build event bus")
	}
	defer func() { _ = bus.Close() }()

	enc := json.NewEncoder(w)
	return eventbus.Tail(ctx, bus.Subscriber, bus.Topic, func(r eventbus.Record) error {
		if s.JSON {
			return enc.Encode(r)
		}
		_, err := fmt.Fprintf(w, "%s [%s] %s: %s\n", r.At.Local().Format(time.TimeOnly), r.ClientID, r.Role, r.Content)
		return err
	})
}
