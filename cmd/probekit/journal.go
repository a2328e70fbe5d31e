package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/probekit/pkg/audit"
	"github.com/platinummonkey/probekit/pkg/config"
)

func newJournalCmd(a *app) *cobra.Command {
	var (
		output string
		filter audit.Filter
		event  string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the newest plugin lifecycle events",
		Long: `List the newest events of the lifecycle journal, newest first. The journal
database (--journal-dsn) is preferred over the journal directory (--journal-dir).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.EventType = audit.EventType(event)
			events, err := readJournal(cmd.Context(), a.settings.Journal, filter)
			if err != nil {
				return err
			}
			return writeEvents(cmd.OutOrStdout(), output, events)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "yaml", "output format (yaml or json)")
	flags.StringVar(&filter.Plugin, "plugin", "", "only events of this plugin")
	flags.StringVar(&filter.Session, "session", "", "only events of this session")
	flags.StringVar(&event, "type", "", "only events of this type, e.g. plugin.start")
	flags.IntVar(&filter.Limit, "limit", 50, "maximum number of events")
	return cmd
}

func readJournal(ctx context.Context, cfg config.JournalConfig, filter audit.Filter) ([]*audit.Event, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case cfg.DSN != "":
		journal, err := audit.OpenDBLogger(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		defer journal.Close()
		return journal.Query(ctx, filter)

	case cfg.Dir != "":
		journal, err := audit.NewFileLogger(audit.DefaultFileLoggerConfig(cfg.Dir))
		if err != nil {
			return nil, err
		}
		defer journal.Close()

		all, err := journal.ReadLogs(0)
		if err != nil {
			return nil, err
		}
		return filterEvents(all, filter), nil

	default:
		return nil, fmt.Errorf("no journal configured: set --%s or --%s", config.KeyJournalDSN, config.KeyJournalDir)
	}
}

// filterEvents applies filter to events stored oldest first, returning them newest first
func filterEvents(events []*audit.Event, filter audit.Filter) []*audit.Event {
	var selected []*audit.Event
	for _, e := range slices.Backward(events) {
		if filter.Plugin != "" && e.Plugin != filter.Plugin {
			continue
		}
		if filter.Session != "" && e.Session != filter.Session {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		selected = append(selected, e)
		if filter.Limit > 0 && len(selected) == filter.Limit {
			break
		}
	}
	return selected
}

func writeEvents(w io.Writer, format string, events []*audit.Event) error {
	if events == nil {
		events = []*audit.Event{}
	}
	return encode(w, format, events)
}
