package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/probekit/pkg/config"
	"github.com/platinummonkey/probekit/pkg/observability"
)

// app carries what every subcommand needs
type app struct {
	v        *viper.Viper
	settings *config.Settings
	log      *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "probekit",
		Short:         "Measurement agent extended by static and dynamic plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings(a.v)
			if err != nil {
				return err
			}
			a.settings = settings
			a.log = observability.NewLogger(settings.Observability.LogLevel, settings.Observability.LogFormat, cmd.ErrOrStderr())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String(config.KeySettingsFile, "", "YAML settings file")
	flags.String(config.KeyLogLevel, "info", "log level (trace, debug, info, warn, error)")
	flags.String(config.KeyLogFormat, "text", "log format (text or json)")
	flags.String(config.KeyJournalDir, "", "directory of the JSON lines lifecycle journal (disabled when empty)")
	flags.String(config.KeyJournalDSN, "", "lifecycle journal database, sqlite3://PATH or postgres://... (disabled when empty)")
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		newRunCmd(a),
		newInspectCmd(a),
		newJournalCmd(a),
		newVersionCmd(),
	)
	return root
}
