package monitor

import (
	"sync"
	"time"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
)

// DefaultAlertCapacity bounds the retained alert list.
const DefaultAlertCapacity = 200

// AlertStore is the bounded in-memory alert list. Acknowledge and Resolve
// are one-way latches; once set they never revert.
type AlertStore struct {
	mu       sync.Mutex
	capacity int
	alerts   []*domain.Alert
	byID     map[string]*domain.Alert
}

// NewAlertStore creates an alert store bounded to capacity entries.
func NewAlertStore(capacity int) *AlertStore {
	if capacity <= 0 {
		capacity = DefaultAlertCapacity
	}
	return &AlertStore{
		capacity: capacity,
		byID:     make(map[string]*domain.Alert),
	}
}

// Add retains the alert, evicting the oldest entries beyond capacity.
func (s *AlertStore) Add(alert *domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	s.byID[alert.ID] = alert
	if len(s.alerts) > s.capacity {
		dropped := s.alerts[:len(s.alerts)-s.capacity]
		for _, d := range dropped {
			delete(s.byID, d.ID)
		}
		s.alerts = s.alerts[len(s.alerts)-s.capacity:]
	}
}

// List returns copies of all retained alerts, newest first.
func (s *AlertStore) List() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for i := len(s.alerts) - 1; i >= 0; i-- {
		out = append(out, *s.alerts[i])
	}
	return out
}

// Acknowledge marks an alert acknowledged. Returns false for unknown ids.
func (s *AlertStore) Acknowledge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.byID[id]
	if !ok {
		return false
	}
	alert.Acknowledged = true
	return true
}

// Resolve timestamps an alert as resolved. The first resolution wins;
// repeated calls keep the original time. Returns false for unknown ids.
func (s *AlertStore) Resolve(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.byID[id]
	if !ok {
		return false
	}
	if alert.ResolvedAt == nil {
		resolved := at
		alert.ResolvedAt = &resolved
	}
	return true
}

// Len returns the number of retained alerts.
func (s *AlertStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}
