package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/probekit/pkg/plugins"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version and the plugin API version",
		// settings are not needed to print versions
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "probekit %s (plugin API %s)\n", version, plugins.HostAPIVersion)
			return err
		},
	}
}
