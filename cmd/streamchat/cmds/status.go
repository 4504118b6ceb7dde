package cmds

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/streamchat/pkg/status"
	"github.com/pkg/errors"
)

type StatusCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*StatusCommand)(nil)

type StatusSettings struct {
	URL            string `glazed:"status-url"`
	TimeoutSeconds int    `glazed:"timeout-seconds"`
	BadgesOnly     bool   `glazed:"badges-only"`
}

func NewStatusCommand() (*StatusCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"status",
		cmds.WithShort("Show agent availability reported by the status endpoint"),
		cmds.WithLong("Fetch the status document once and emit one row per reported value."),
		cmds.WithFlags(
			fields.New("status-url", fields.TypeString, fields.WithHelp("Status endpoint"), fields.WithDefault("http://localhost:8000/api/status")),
			fields.New("timeout-seconds", fields.TypeInteger, fields.WithHelp("Request timeout"), fields.WithDefault(10)),
			fields.New("badges-only", fields.TypeBool, fields.WithHelp("Only emit the badge flags shown in the chat UI"), fields.WithDefault(false)),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &StatusCommand{CommandDescription: desc}, nil
}

func (c *StatusCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *values.Values, gp middlewares.Processor) error {
	s := &StatusSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}

	timeout := time.Duration(s.TimeoutSeconds) * time.Second
	poller := status.NewPoller(s.URL, 0, &http.Client{Timeout: timeout})
	report, err := poller.Fetch(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch status")
	}

	if s.BadgesOnly {
		for _, b := range status.DefaultBadges {
			v, found := report.Lookup(b.Path)
			row := types.NewRow(
				types.MRP("badge", b.Label),
				types.MRP("path", b.Path),
				types.MRP("enabled", report.Enabled(b.Path)),
				types.MRP("reported", found),
				types.MRP("value", v),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
		return nil
	}

	for _, leaf := range report.Leaves() {
		row := types.NewRow(
			types.MRP("path", leaf.Path),
			types.MRP("value", leaf.Value),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
