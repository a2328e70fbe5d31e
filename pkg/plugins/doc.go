// Package plugins is the plugin runtime of probekit: it loads plugins, checks
// that they fit the host, hands them their configuration and drives their
// lifecycle.
//
// # Plugin Kinds
//
// Static plugins are compiled into the host and described with NewStaticDescriptor.
// Dynamic plugins are shared libraries exporting seven symbols:
//
//	const char *PLUGIN_NAME;
//	const char *PLUGIN_VERSION;
//	const char *PLUGIN_API_VERSION;
//	void *plugin_init(const probekit_host *host, uintptr_t config);
//	void  plugin_start(void *instance, uintptr_t start);
//	void  plugin_stop(void *instance);
//	void  plugin_drop(void *instance);
//
// plugin_init returns NULL on failure and must not leak anything in that case.
// plugin_drop must release everything acquired since plugin_init, the instance
// included.
//
// # Host API
//
// probekit_host is a table of C function pointers served by Host and valid
// for the life of the process; plugins keep the pointer they receive. The
// config and start arguments are handles into a dylib.Handles table that
// the table functions resolve: the config handle is valid during plugin_init
// only, the start handle between plugin_start and plugin_stop.
//
//	int32_t  config_int(config, const char *path, int64_t *out);
//	int32_t  config_float(config, const char *path, double *out);
//	int32_t  config_bool(config, const char *path, int32_t *out);
//	int64_t  config_string(config, const char *path, char *buf, size_t len);
//	uint64_t create_metric(start, const char *name, const char *unit, const char *description);
//	int32_t  add_source(start, void (*poll)(void *source, uintptr_t acc, int64_t ts_ns), void *source);
//	int32_t  push(uintptr_t acc, uint64_t metric, double value);
//
// Paths are dotted ("server.port", "targets.0"). The int32_t results are 1 on
// success and 0 on failure; config_string returns the full length of the
// string, or -1, and create_metric returns 0 on failure. A full C header is
// shipped with examples/dynamic-plugin-c.
//
// Both kinds become a Descriptor first, then a Plugin once constructed; nothing
// after construction depends on the kind.
//
// # Lifecycle
//
//	Loaded -> Constructed -> Started <-> Stopped -> Destroyed
//
// The Registry owns constructed plugins and rejects illegal transitions.
// PostStartup runs once per session, after every plugin of the session started.
//
// # Usage Example
//
//	loader := plugins.NewLoader(log)
//	descriptors, err := loader.Discover(plugins.DefaultPluginDirectories())
//
//	doc, err := config.Load("probekit.toml")
//	registry := plugins.NewRegistry(log)
//	session := plugins.NewSession(registry, pipeline.NewBuilder(), log)
//	err = session.Add(ctx, descriptors, doc)
//	startup, err := session.Start(ctx)
//	...
//	err = session.Close(ctx)
//
// # Versioning
//
// A plugin declares the minimum host API version it needs. The host can load
// it when both share the same major version and the host's minor and patch are
// not older than the required ones.
package plugins
