package cmds

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/streamchat/pkg/mockserver"
	"github.com/pkg/errors"
)

type ServeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ServeCommand)(nil)

type ServeSettings struct {
	Addr         string `glazed:"addr"`
	Script       string `glazed:"script"`
	ChunkDelayMs int    `glazed:"chunk-delay-ms"`
}

func NewServeCommand() (*ServeCommand, error) {
	desc := cmds.NewCommandDescription(
		"serve",
		cmds.WithShort("Serve a local chat endpoint that streams scripted or echoed replies"),
		cmds.WithFlags(
			fields.New("addr", fields.TypeString, fields.WithHelp("Listen address"), fields.WithDefault(":8000")),
			fields.New("script", fields.TypeString, fields.WithHelp("YAML reply script (echo when empty)"), fields.WithDefault("")),
			fields.New("chunk-delay-ms", fields.TypeInteger, fields.WithHelp("Delay between chunk frames"), fields.WithDefault(50)),
		),
	)
	return &ServeCommand{CommandDescription: desc}, nil
}

func (c *ServeCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, _ io.Writer) error {
	s := &ServeSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "decode serve settings")
	}

	opts := []mockserver.Option{
		mockserver.WithChunkDelay(time.Duration(s.ChunkDelayMs) * time.Millisecond),
	}
	if s.Script != "" {
		f, err := os.Open(s.Script)
		if err != nil {
			return errors.Wrap(err, "open reply script")
		}
		script, err := mockserver.LoadScript(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		opts = append(opts, mockserver.WithReplier(script))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mockserver.New(opts...).Run(ctx, s.Addr)
}
