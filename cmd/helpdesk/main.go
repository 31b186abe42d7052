package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "helpdesk",
		Short:        "Chat helpdesk assistant",
		Long:         "helpdesk answers support questions in Slack channels with a tool-using language model.",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(os.Getenv("HELPDESK_LOG_LEVEL"), os.Getenv("HELPDESK_LOG_FORMAT"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(keygenCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("helpdesk failed")
	}
}

// setupLogging initializes structured logging from environment values.
func setupLogging(levelName, format string) {
	level, parseErr := zerolog.ParseLevel(levelName)
	if parseErr != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
