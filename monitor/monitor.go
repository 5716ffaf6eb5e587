// Package monitor tracks agent health from lifecycle events and periodic
// checks, raising alerts when thresholds or health rules are breached.
package monitor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/bus"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/governance"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/registry"
)

// Health rule and threshold constants.
const (
	errorWindow          = 5 * time.Minute
	highErrorLimit       = 2
	warnSuccessRate      = 0.8
	alertSuccessRate     = 0.7
	alertAvgTaskTimeMs   = 10000
	alertMemoryMB        = 500
	DefaultCheckInterval = 30 * time.Second
)

var (
	alertsRaisedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wt_alerts_raised_total",
			Help: "Alerts raised by type and severity.",
		},
		[]string{"type", "severity"},
	)
	agentHealthGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wt_agent_health",
			Help: "Agent health state (0 healthy, 1 warning, 2 critical, 3 offline).",
		},
		[]string{"agent_id"},
	)
)

func init() {
	prometheus.MustRegister(alertsRaisedTotal, agentHealthGauge)
}

// ResourceSample is one resource reading for an agent.
type ResourceSample struct {
	MemoryMB   float64
	CPUPercent float64
}

// ResourceProbe samples an agent's resource usage during a health check.
// A nil probe disables sampling; a probe may panic without taking down the
// check loop.
type ResourceProbe func(agentID string) (ResourceSample, error)

type agentState struct {
	status          domain.AgentStatus
	startedAt       time.Time
	taskTimeTotalMs float64
	successCount    int64
}

// Monitor consumes agent events from the bus and runs periodic health
// checks. A single goroutine owns all status mutation, so event handling and
// checks never overlap.
type Monitor struct {
	mu       sync.RWMutex
	agents   map[string]*agentState
	alerts   *AlertStore
	registry *registry.Registry
	events   *bus.Bus
	gov      governance.Logger
	probe    ResourceProbe
	interval time.Duration
	log      *logrus.Logger
}

// New creates a monitor seeded from the agent registry. Agents active in the
// catalog start healthy with a fresh heartbeat; inactive agents start
// offline.
func New(reg *registry.Registry, eventBus *bus.Bus, gov governance.Logger, probe ResourceProbe, log *logrus.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if log == nil {
		log = logrus.New()
	}
	m := &Monitor{
		agents:   make(map[string]*agentState),
		alerts:   NewAlertStore(DefaultAlertCapacity),
		registry: reg,
		events:   eventBus,
		gov:      gov,
		probe:    probe,
		interval: interval,
		log:      log,
	}
	now := time.Now().UTC()
	for _, a := range reg.List() {
		st := m.ensureStateLocked(a.ID, now)
		st.status.Active = a.Active
		if a.Active {
			st.status.Health = domain.HealthHealthy
			st.status.LastHeartbeat = now
		}
		agentHealthGauge.WithLabelValues(a.ID).Set(healthGaugeValue(st.status.Health))
	}
	return m
}

// Start launches the consumer loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	events, cancel := m.events.Subscribe(256)
	go m.run(ctx, events, cancel)
}

func (m *Monitor) run(ctx context.Context, events <-chan domain.AgentEvent, cancel func()) {
	defer cancel()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.WithField("interval", m.interval).Info("agent monitor started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("agent monitor stopped")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		case <-ticker.C:
			m.tick(time.Now().UTC())
		}
	}
}

// handleEvent applies one agent event to the tracked state.
func (m *Monitor) handleEvent(ev domain.AgentEvent) {
	if ev.AgentID == "" {
		return
	}
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ensureStateLocked(ev.AgentID, now)

	switch ev.Kind {
	case domain.EventStarted:
		st.status.Active = true
		st.status.Health = domain.HealthHealthy
		st.status.LastHeartbeat = now
		st.status.UptimeSeconds = 0
		st.startedAt = now
		m.registry.SetActive(ev.AgentID, true)

	case domain.EventStopped:
		st.status.Active = false
		st.status.Health = domain.HealthOffline
		st.status.UptimeSeconds = 0
		m.registry.SetActive(ev.AgentID, false)

	case domain.EventError:
		severity := inferSeverity(ev.Message)
		st.status.Errors = append(st.status.Errors, domain.AgentError{
			Timestamp: now,
			Severity:  severity,
			Message:   ev.Message,
		})
		if len(st.status.Errors) > 50 {
			st.status.Errors = st.status.Errors[len(st.status.Errors)-50:]
		}
		if severity == domain.SeverityCritical {
			m.raiseAlert(ev.AgentID, domain.AlertTypeError, domain.SeverityCritical, ev.Message, now)
		}

	case domain.EventTaskCompleted:
		st.status.Performance.TasksCompleted++
		st.taskTimeTotalMs += ev.ExecutionTimeMs
		if ev.Success {
			st.successCount++
		}
		tasks := st.status.Performance.TasksCompleted
		st.status.Performance.AverageTaskTimeMs = st.taskTimeTotalMs / float64(tasks)
		st.status.Performance.SuccessRate = float64(st.successCount) / float64(tasks)
		minutes := now.Sub(st.startedAt).Minutes()
		if minutes < 1 {
			minutes = 1
		}
		st.status.Performance.ThroughputPerMinute = float64(tasks) / minutes
		st.status.LastHeartbeat = now

	case domain.EventPerformanceUpdate:
		st.status.Performance.MemoryMB = ev.MemoryMB
		st.status.Performance.CPUPercent = ev.CPUPercent
		st.status.LastHeartbeat = now

	default:
		m.log.WithFields(logrus.Fields{
			"agent_id": ev.AgentID,
			"kind":     ev.Kind,
		}).Warn("ignoring unknown agent event kind")
	}

	agentHealthGauge.WithLabelValues(ev.AgentID).Set(healthGaugeValue(st.status.Health))
}

// tick runs one health check pass over every tracked agent. A failure in one
// agent's check never affects the others.
func (m *Monitor) tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, st := range m.agents {
		m.checkAgentLocked(id, st, now)
	}
}

func (m *Monitor) checkAgentLocked(id string, st *agentState, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("agent_id", id).Errorf("health check panicked: %v", r)
		}
	}()

	if st.status.Active {
		if m.probe != nil {
			sample, err := m.probe(id)
			if err != nil {
				m.log.WithField("agent_id", id).WithError(err).Warn("resource probe failed")
			} else {
				st.status.Performance.MemoryMB = sample.MemoryMB
				st.status.Performance.CPUPercent = sample.CPUPercent
				st.status.LastHeartbeat = now
			}
		} else {
			st.status.LastHeartbeat = now
		}
		st.status.UptimeSeconds = now.Sub(st.startedAt).Seconds()
	}

	previous := st.status.Health
	st.status.Health = evaluateHealth(st, now)
	if st.status.Health != previous {
		switch st.status.Health {
		case domain.HealthCritical:
			m.raiseAlert(id, domain.AlertTypeHealth, domain.SeverityCritical, "agent health degraded to critical", now)
		case domain.HealthWarning:
			m.raiseAlert(id, domain.AlertTypeHealth, domain.SeverityMedium, "agent health degraded to warning", now)
		}
	}
	agentHealthGauge.WithLabelValues(id).Set(healthGaugeValue(st.status.Health))

	if st.status.Active {
		m.checkThresholds(id, st, now)
	}
}

// checkThresholds raises performance alerts for every breached threshold.
// Alerts are raised again on every check while the breach persists; there is
// no suppression window.
func (m *Monitor) checkThresholds(id string, st *agentState, now time.Time) {
	perf := st.status.Performance
	if perf.TasksCompleted > 0 && perf.SuccessRate < alertSuccessRate {
		m.raiseAlert(id, domain.AlertTypePerformance, domain.SeverityHigh,
			"success rate below 70%", now)
	}
	if perf.AverageTaskTimeMs > alertAvgTaskTimeMs {
		m.raiseAlert(id, domain.AlertTypePerformance, domain.SeverityMedium,
			"average task time above 10s", now)
	}
	if perf.MemoryMB > alertMemoryMB {
		m.raiseAlert(id, domain.AlertTypePerformance, domain.SeverityMedium,
			"memory usage above 500MB", now)
	}
}

// evaluateHealth applies the health rules. Offline takes precedence; a
// critical error within the window forces critical; repeated high errors or
// a low success rate force warning.
func evaluateHealth(st *agentState, now time.Time) domain.HealthState {
	if !st.status.Active {
		return domain.HealthOffline
	}
	cutoff := now.Add(-errorWindow)
	high := 0
	for _, e := range st.status.Errors {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		switch e.Severity {
		case domain.SeverityCritical:
			return domain.HealthCritical
		case domain.SeverityHigh:
			high++
		}
	}
	perf := st.status.Performance
	if high > highErrorLimit || (perf.TasksCompleted > 0 && perf.SuccessRate < warnSuccessRate) {
		return domain.HealthWarning
	}
	return domain.HealthHealthy
}

// inferSeverity classifies an error message by keyword.
func inferSeverity(message string) domain.AlertSeverity {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "critical"), strings.Contains(msg, "fatal"):
		return domain.SeverityCritical
	case strings.Contains(msg, "error"), strings.Contains(msg, "failed"):
		return domain.SeverityHigh
	case strings.Contains(msg, "warning"):
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func (m *Monitor) raiseAlert(agentID string, alertType domain.AlertType, severity domain.AlertSeverity, message string, now time.Time) {
	alert := &domain.Alert{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: now,
	}
	m.alerts.Add(alert)
	alertsRaisedTotal.WithLabelValues(string(alertType), string(severity)).Inc()
	m.log.WithFields(logrus.Fields{
		"agent_id": agentID,
		"type":     alertType,
		"severity": severity,
	}).Warn(message)
	if m.gov != nil {
		if _, err := m.gov.Append(context.Background(), governance.EntryAlertRaised, map[string]any{
			"alertId":  alert.ID,
			"agentId":  agentID,
			"type":     alertType,
			"severity": severity,
			"message":  message,
		}); err != nil {
			m.log.WithError(err).Warn("failed to write alert governance entry")
		}
	}
}

// OnCatalogReloadError raises a low-severity config alert. Wired as the
// registry watcher's reload failure callback.
func (m *Monitor) OnCatalogReloadError(err error) {
	m.raiseAlert("", domain.AlertTypeConfig, domain.SeverityLow,
		"agent catalog reload failed: "+err.Error(), time.Now().UTC())
}

func (m *Monitor) ensureStateLocked(agentID string, now time.Time) *agentState {
	st, ok := m.agents[agentID]
	if !ok {
		st = &agentState{
			status: domain.AgentStatus{
				ID:          agentID,
				Health:      domain.HealthOffline,
				Performance: domain.PerformanceMetrics{SuccessRate: 1.0},
			},
			startedAt: now,
		}
		m.agents[agentID] = st
	}
	return st
}

// Status returns a copy of one agent's tracked status.
func (m *Monitor) Status(agentID string) (domain.AgentStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.agents[agentID]
	if !ok {
		return domain.AgentStatus{}, false
	}
	return copyStatus(st.status), true
}

// Statuses returns copies of all tracked statuses ordered by agent id.
func (m *Monitor) Statuses() []domain.AgentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AgentStatus, 0, len(m.agents))
	for _, st := range m.agents {
		out = append(out, copyStatus(st.status))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SystemHealth aggregates health across all tracked agents. Any critical
// agent makes the system critical; fewer than 80% of active agents healthy
// makes it warning.
func (m *Monitor) SystemHealth() domain.SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	health := domain.SystemHealth{
		Overall:    domain.HealthHealthy,
		AgentCount: len(m.agents),
		Timestamp:  time.Now().UTC(),
	}
	critical := false
	for _, st := range m.agents {
		if st.status.Health == domain.HealthCritical {
			critical = true
		}
		if st.status.Active {
			health.ActiveCount++
			if st.status.Health == domain.HealthHealthy {
				health.HealthyCount++
			}
		}
	}
	switch {
	case critical:
		health.Overall = domain.HealthCritical
	case health.ActiveCount > 0 && float64(health.HealthyCount) < 0.8*float64(health.ActiveCount):
		health.Overall = domain.HealthWarning
	}
	return health
}

// Alerts returns copies of all retained alerts, newest first.
func (m *Monitor) Alerts() []domain.Alert {
	return m.alerts.List()
}

// Acknowledge latches an alert as acknowledged.
func (m *Monitor) Acknowledge(alertID string) bool {
	return m.alerts.Acknowledge(alertID)
}

// Resolve latches an alert as resolved.
func (m *Monitor) Resolve(alertID string) bool {
	return m.alerts.Resolve(alertID, time.Now().UTC())
}

func copyStatus(status domain.AgentStatus) domain.AgentStatus {
	out := status
	if len(status.Errors) > 0 {
		out.Errors = make([]domain.AgentError, len(status.Errors))
		copy(out.Errors, status.Errors)
	}
	return out
}

func healthGaugeValue(h domain.HealthState) float64 {
	switch h {
	case domain.HealthHealthy:
		return 0
	case domain.HealthWarning:
		return 1
	case domain.HealthCritical:
		return 2
	default:
		return 3
	}
}
