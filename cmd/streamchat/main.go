package main

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/go-go-golems/streamchat/cmd/streamchat/cmds"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "streamchat",
	Short: "Streaming chat client and local chat endpoint",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLoggerFromCobra(cmd)
	},
}

func main() {
	if err := clay.InitGlazed("streamchat", rootCmd); err != nil {
		cobra.CheckErr(err)
	}

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	chatCmd, err := cmds.NewChatCommand()
	cobra.CheckErr(err)
	serveCmd, err := cmds.NewServeCommand()
	cobra.CheckErr(err)
	statusCmd, err := cmds.NewStatusCommand()
	cobra.CheckErr(err)

	cobraChatCmd, err := cli.BuildCobraCommand(chatCmd)
	cobra.CheckErr(err)
	cobraServeCmd, err := cli.BuildCobraCommand(serveCmd)
	cobra.CheckErr(err)
	cobraStatusCmd, err := cli.BuildCobraCommand(statusCmd)
	cobra.CheckErr(err)

	rootCmd.AddCommand(cobraChatCmd, cobraServeCmd, cobraStatusCmd)
	cmds.AddTranscriptCommands(rootCmd)

	cobra.CheckErr(rootCmd.Execute())
}
