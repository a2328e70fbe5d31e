package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/probekit/pkg/httputil"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// PluginStatus is the externally visible state of one plugin
type PluginStatus struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Running   bool      `json:"running"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HealthStatus is the body of the plugin health endpoint
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Session   string         `json:"session,omitempty"`
	Plugins   []PluginStatus `json:"plugins"`
}

// StatusBoard holds the latest status of every plugin.
// The plugin runtime writes to it from the orchestration goroutine while
// HTTP handlers read snapshots concurrently.
type StatusBoard struct {
	mu      sync.RWMutex
	order   []string
	plugins map[string]PluginStatus
	session string
}

// NewStatusBoard creates an empty board
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{plugins: make(map[string]PluginStatus)}
}

// Set records the status of a plugin. A nil board ignores the call.
func (b *StatusBoard) Set(status PluginStatus) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.plugins[status.Name]; !exists {
		b.order = append(b.order, status.Name)
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now()
	}
	b.plugins[status.Name] = status
}

// Delete forgets a plugin
func (b *StatusBoard) Delete(name string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.plugins[name]; !exists {
		return
	}
	delete(b.plugins, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// SetSession records the id of the current session
func (b *StatusBoard) SetSession(id string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.session = id
	b.mu.Unlock()
}

// Snapshot returns the current health status
func (b *StatusBoard) Snapshot() HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := HealthStatus{
		Timestamp: time.Now(),
		Session:   b.session,
		Plugins:   make([]PluginStatus, 0, len(b.order)),
	}

	running := 0
	for _, name := range b.order {
		p := b.plugins[name]
		if p.Running {
			running++
		}
		status.Plugins = append(status.Plugins, p)
	}

	switch {
	case len(status.Plugins) == 0 || running == 0:
		status.Status = StatusUnhealthy
	case running < len(status.Plugins):
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}

	return status
}

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (b *StatusBoard) Liveness(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Plugins reports the state of every plugin.
// It answers 503 when no plugin is running.
func (b *StatusBoard) Plugins(w http.ResponseWriter, r *http.Request) {
	status := b.Snapshot()

	if status.Status == StatusUnhealthy {
		_ = httputil.WriteServiceUnavailable(w, status)
		return
	}
	_ = httputil.WriteSuccess(w, status)
}

// NewStatusRouter builds the routes of the status server
func NewStatusRouter(board *StatusBoard, gatherer prometheus.Gatherer, log logrus.FieldLogger) *mux.Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := mux.NewRouter()
	r.Use(
		otelhttp.NewMiddleware("probekit.status"),
		mux.MiddlewareFunc(httputil.RequestID),
		mux.MiddlewareFunc(httputil.Recovery(log)),
		mux.MiddlewareFunc(httputil.Logging(log)),
	)
	r.Handle("/metrics", MetricsHandler(gatherer)).Methods(http.MethodGet)
	r.HandleFunc("/health/live", board.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/health/plugins", board.Plugins).Methods(http.MethodGet)
	r.HandleFunc("/health/plugins/{name}", board.plugin).Methods(http.MethodGet)
	return r
}

func (b *StatusBoard) plugin(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	b.mu.RLock()
	p, ok := b.plugins[name]
	b.mu.RUnlock()

	if !ok {
		httputil.WriteNotFoundError(w, "plugin not found: "+name)
		return
	}
	_ = httputil.WriteSuccess(w, p)
}
