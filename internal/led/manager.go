package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/uvcnode/internal/events"
)

// Manager shows aggregate camera health on a status LED: off with no
// cameras, solid when every camera is available, blinking otherwise.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger

	mu        sync.Mutex
	available map[string]bool
	current   Pattern
	unsubs    []func()
}

// NewManager creates a manager that drives controller from eventBus.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		available:  make(map[string]bool),
	}
}

// Start subscribes to camera events and turns the LED off until the first
// camera reports.
func (m *Manager) Start() {
	m.mu.Lock()
	m.unsubs = []func(){
		m.eventBus.Subscribe(m.handleState),
		m.eventBus.Subscribe(m.handleConfigured),
	}
	m.mu.Unlock()
	m.apply()
	m.logger.Info("LED manager started", "led", m.controller.Name())
}

// Stop unsubscribes and leaves the LED as it is.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

func (m *Manager) handleState(e events.CameraStateChangedEvent) {
	m.mu.Lock()
	if e.State == "closed" {
		delete(m.available, e.CameraID)
	} else {
		m.available[e.CameraID] = e.Available
	}
	m.mu.Unlock()
	m.apply()
}

func (m *Manager) handleConfigured(e events.CameraConfiguredEvent) {
	if e.Action != "removed" {
		return
	}
	m.mu.Lock()
	delete(m.available, e.CameraID)
	m.mu.Unlock()
	m.apply()
}

// Pattern returns what the LED should currently show.
func (m *Manager) Pattern() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patternLocked()
}

func (m *Manager) patternLocked() Pattern {
	if len(m.available) == 0 {
		return PatternOff
	}
	for _, ok := range m.available {
		if !ok {
			return PatternBlink
		}
	}
	return PatternSolid
}

// apply writes the pattern when it changed.
func (m *Manager) apply() {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.patternLocked()
	if p == m.current {
		return
	}
	if err := m.controller.Set(p); err != nil {
		m.logger.Warn("Failed to set status LED", "pattern", p, "error", err)
		return
	}
	m.current = p
	m.logger.Debug("Status LED changed", "pattern", p, "cameras", len(m.available))
}
