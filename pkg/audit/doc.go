// Package audit records the plugin lifecycle journal: one event per load,
// start, stop, post-startup and close of a plugin, and per start or stop of a
// session, with its outcome and duration.
//
// # Destinations
//
// FileLogger appends JSON lines to journal.log and rotates it by size.
// DBLogger inserts into a plugin_journal table in SQLite or PostgreSQL and can
// query it back. MultiLogger writes to several destinations.
//
// # Usage Example
//
//	journal, err := audit.OpenDBLogger(ctx, "sqlite3:///var/lib/probekit/journal.db")
//	if err != nil {
//		return err
//	}
//	defer journal.Close()
//
//	event := audit.NewEvent(audit.EventTypePluginStart, err).WithDuration(elapsed)
//	event.Plugin = "rapl"
//	_ = journal.Log(ctx, event)
//
//	recent, err := journal.Query(ctx, audit.Filter{Plugin: "rapl", Limit: 20})
//
// # Related Packages
//
//   - pkg/plugins: Journals registry transitions and library loads
//   - cmd/probekit: Opens the journal from the settings; "journal" lists it
package audit
