package services

import (
	"context"
	"log/slog"
	"time"
)

// DependencyRecorder receives the outcome of each check (see metrics.Collector)
type DependencyRecorder interface {
	SetDependency(name string, up bool)
}

// Monitor periodically checks all registered services
type Monitor struct {
	registry *Registry
	recorder DependencyRecorder
	interval time.Duration
	timeout  time.Duration
}

// NewMonitor creates a new health monitor
func NewMonitor(registry *Registry, recorder DependencyRecorder, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Monitor{
		registry: registry,
		recorder: recorder,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Start begins the monitor in a goroutine
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// run is the main loop for the monitor
func (m *Monitor) run(ctx context.Context) {
	slog.Info("health monitor started", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Run immediately on start
	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check runs one round of health checks
func (m *Monitor) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	for name, err := range m.registry.HealthCheckAll(checkCtx) {
		if m.recorder != nil {
			m.recorder.SetDependency(name, err == nil)
		}
		if err != nil {
			slog.Error("dependency unhealthy", "service", name, "error", err)
			continue
		}
		slog.Debug("dependency healthy", "service", name)
	}
}
