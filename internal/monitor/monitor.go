// Package monitor tracks venue health. Registered checks run on a fixed
// interval; status transitions (healthy → degraded, and recovery) raise
// alerts through an optional callback.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"riskcore/internal/config"
)

// maxAlerts bounds the in-memory alert history.
const maxAlerts = 200

// ServiceStatus is the health classification of one venue or dependency.
type ServiceStatus string

const (
	StatusOperational   ServiceStatus = "operational"
	StatusDegraded      ServiceStatus = "degraded"
	StatusPartialOutage ServiceStatus = "partial_outage"
	StatusMajorOutage   ServiceStatus = "major_outage"
	StatusUnknown       ServiceStatus = "unknown"
)

// Healthy reports whether the service is fully operational.
func (s ServiceStatus) Healthy() bool { return s == StatusOperational }

// Severity ranks status alerts.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Health is the result of one check.
type Health struct {
	Service      string
	Status       ServiceStatus
	LastCheck    time.Time
	ResponseTime time.Duration
	Err          string
}

// StatusAlert reports a service status transition.
type StatusAlert struct {
	ID         string
	Timestamp  time.Time
	Severity   Severity
	Service    string
	Message    string
	Resolved   bool
	ResolvedAt time.Time
}

// CheckFunc probes one service and reports its health.
type CheckFunc func(ctx context.Context) Health

// Monitor runs registered health checks and tracks transitions.
type Monitor struct {
	mu      sync.Mutex
	checks  map[string]CheckFunc
	health  map[string]Health
	alerts  []StatusAlert
	onAlert func(StatusAlert)

	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a monitor with the configured check interval.
func New(cfg config.MonitorConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		checks:   make(map[string]CheckFunc),
		health:   make(map[string]Health),
		interval: cfg.CheckInterval,
		logger:   logger.With("component", "monitor"),
		now:      time.Now,
	}
}

// Register adds a health check under a service name.
func (m *Monitor) Register(service string, check CheckFunc) {
	m.mu.Lock()
	m.checks[service] = check
	m.mu.Unlock()
}

// OnAlert sets the transition callback. Panics in the callback are
// isolated from the check loop.
func (m *Monitor) OnAlert(fn func(StatusAlert)) {
	m.mu.Lock()
	m.onAlert = fn
	m.mu.Unlock()
}

// CheckAll runs every registered check once and returns the results.
func (m *Monitor) CheckAll(ctx context.Context) map[string]Health {
	m.mu.Lock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.Unlock()

	results := make(map[string]Health, len(checks))
	for service, check := range checks {
		results[service] = m.runCheck(ctx, service, check)
	}

	m.mu.Lock()
	old := m.health
	m.health = results
	var fired []StatusAlert
	for service, health := range results {
		if a, ok := m.transitionLocked(old, service, health); ok {
			fired = append(fired, a)
		}
	}
	cb := m.onAlert
	m.mu.Unlock()

	if cb != nil {
		for _, a := range fired {
			m.notify(cb, a)
		}
	}
	return results
}

func (m *Monitor) runCheck(ctx context.Context, service string, check CheckFunc) (h Health) {
	defer func() {
		if r := recover(); r != nil {
			h = Health{
				Service:   service,
				Status:    StatusUnknown,
				LastCheck: m.now(),
				Err:       fmt.Sprintf("check panic: %v", r),
			}
		}
	}()
	h = check(ctx)
	h.Service = service
	if h.LastCheck.IsZero() {
		h.LastCheck = m.now()
	}
	return h
}

// transitionLocked records an alert when a service changes health state.
func (m *Monitor) transitionLocked(old map[string]Health, service string, h Health) (StatusAlert, bool) {
	prev, seen := old[service]

	var alert StatusAlert
	switch {
	case !h.Status.Healthy() && (!seen || prev.Status.Healthy()):
		severity := SeverityWarning
		if h.Status == StatusMajorOutage {
			severity = SeverityError
		}
		msg := fmt.Sprintf("%s status changed to %s", service, h.Status)
		if h.Err != "" {
			msg += ": " + h.Err
		}
		alert = StatusAlert{
			ID: uuid.NewString(), Timestamp: m.now(),
			Severity: severity, Service: service, Message: msg,
		}
	case h.Status.Healthy() && seen && !prev.Status.Healthy():
		alert = StatusAlert{
			ID: uuid.NewString(), Timestamp: m.now(),
			Severity: SeverityInfo, Service: service,
			Message: service + " recovered, service operational",
		}
	default:
		return StatusAlert{}, false
	}

	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
	m.logger.Warn("service status transition",
		"service", service, "status", h.Status, "severity", alert.Severity)
	return alert, true
}

func (m *Monitor) notify(cb func(StatusAlert), a StatusAlert) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert callback panic", "panic", r)
		}
	}()
	cb(a)
}

// Run checks all services on the configured interval until ctx is
// cancelled. The first sweep runs immediately.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// Status returns the last known health of a service.
func (m *Monitor) Status(service string) (Health, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.health[service]
	return h, ok
}

// AllHealthy reports whether every checked service is operational.
func (m *Monitor) AllHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.health {
		if !h.Status.Healthy() {
			return false
		}
	}
	return true
}

// Alerts returns recent transition alerts, oldest first.
func (m *Monitor) Alerts(unresolvedOnly bool, limit int) []StatusAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StatusAlert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if unresolvedOnly && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Resolve marks an alert handled.
func (m *Monitor) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedAt = m.now()
			return true
		}
	}
	return false
}

// HTTPCheck probes an endpoint with resty. 2xx and 401 count as
// operational (401 means the venue is up and rejecting anonymous calls);
// other statuses are degraded, transport errors a major outage.
func HTTPCheck(client *resty.Client, url string) CheckFunc {
	return func(ctx context.Context) Health {
		start := time.Now()
		resp, err := client.R().SetContext(ctx).Get(url)
		elapsed := time.Since(start)

		h := Health{LastCheck: time.Now(), ResponseTime: elapsed}
		switch {
		case err != nil:
			h.Status = StatusMajorOutage
			h.Err = err.Error()
		case resp.IsSuccess() || resp.StatusCode() == 401:
			h.Status = StatusOperational
		default:
			h.Status = StatusDegraded
			h.Err = fmt.Sprintf("HTTP %d", resp.StatusCode())
		}
		return h
	}
}
