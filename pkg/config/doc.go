// Package config provides the plugin configuration document and the host settings.
//
// # Plugin configuration
//
// Plugins are configured from one TOML document whose top-level keys are plugin
// names. Each plugin receives only its own table:
//
//	[rapl]
//	poll_interval_ms = 1000
//
//	[demo]
//	interval_ms = 100
//
// Parse keeps the document order of every key. Table.Take moves a section out of
// the document, so each section is handed out exactly once.
//
// # Host settings
//
// Settings are read with viper from flags, PROBEKIT_* environment variables and
// an optional YAML settings file:
//
//	PROBEKIT_PLUGIN_DIRS="/usr/lib/probekit/plugins"
//	PROBEKIT_PLUGIN_CONFIG="/etc/probekit/probekit.toml"
//	PROBEKIT_LOG_LEVEL="info"      # trace, debug, info, warn, error
//	PROBEKIT_LOG_FORMAT="text"     # text, json
//	PROBEKIT_STATUS_ADDR=":9090"
//	PROBEKIT_OTEL_ENABLED="true"
//	PROBEKIT_OTEL_ENDPOINT="otel-collector:4317"
//	PROBEKIT_WATCH_CONFIG="true"   # restart plugins when the TOML document changes
//	PROBEKIT_RESTART_SCHEDULE="0 3 * * *"
//	PROBEKIT_JOURNAL_DSN="sqlite3:///var/lib/probekit/journal.db"
//
// # Usage Example
//
//	doc, err := config.Load("probekit.toml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	section, err := doc.Take("demo")
//
// # Related Packages
//
//   - pkg/plugins: Distributes sections to plugins
//   - pkg/dylib: Converts sections for dynamic plugins
package config
