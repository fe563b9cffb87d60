package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/moolen/faultline/internal/logging"
)

// DefaultShutdownTimeout is the per-component stop deadline.
const DefaultShutdownTimeout = 30 * time.Second

// Manager starts components after their dependencies and stops them in reverse start
// order. A failed start rolls back everything already started.
type Manager struct {
	mu              sync.Mutex
	components      []Component
	dependencies    map[Component][]Component
	started         []Component
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates a manager with DefaultShutdownTimeout.
func NewManager() *Manager {
	return &Manager{
		dependencies:    make(map[Component][]Component),
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register adds component. Dependencies must already be registered, which also rules out
// cycles.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if component == nil {
		return errors.New("cannot register nil component")
	}
	if component.Name() == "" {
		return errors.New("component must have a non-empty name")
	}
	if slices.Contains(m.components, component) {
		return fmt.Errorf("component %s is already registered", component.Name())
	}
	for _, dep := range dependsOn {
		if !slices.Contains(m.components, dep) {
			return fmt.Errorf("dependency %s of %s is not registered", dep.Name(), component.Name())
		}
	}

	m.components = append(m.components, component)
	m.dependencies[component] = dependsOn
	m.logger.Debug("Registered %s with %d dependencies", component.Name(), len(dependsOn))
	return nil
}

// Start starts all components in dependency order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = m.started[:0]
	for _, c := range m.order() {
		begin := time.Now()
		m.logger.Info("Starting %s", c.Name())
		if err := c.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", c.Name(), err)
			m.stopStarted(context.Background(), 5*time.Second)
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		m.started = append(m.started, c)
		m.logger.Info("%s started (took %dms)", c.Name(), time.Since(begin).Milliseconds())
	}
	return nil
}

// Stop stops started components in reverse order. Errors are logged, never returned.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Stopping %d components", len(m.started))
	m.stopStarted(ctx, m.shutdownTimeout)
	return nil
}

// Running reports whether component is started.
func (m *Manager) Running(component Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.started, component)
}

// SetShutdownTimeout sets the per-component stop deadline.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}

func (m *Manager) stopStarted(ctx context.Context, timeout time.Duration) {
	for i := len(m.started) - 1; i >= 0; i-- {
		c := m.started[i]
		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Stop(stopCtx)
		cancel()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			m.logger.Warn("%s exceeded its %s shutdown deadline", c.Name(), timeout)
		case err != nil:
			m.logger.Error("Error stopping %s: %v", c.Name(), err)
		default:
			m.logger.Info("%s stopped", c.Name())
		}
	}
	m.started = m.started[:0]
}

// order returns components with every dependency before its dependents, keeping
// registration order otherwise.
func (m *Manager) order() []Component {
	visited := make(map[Component]bool)
	var out []Component
	var visit func(c Component)
	visit = func(c Component) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			visit(dep)
		}
		out = append(out, c)
	}
	for _, c := range m.components {
		visit(c)
	}
	return out
}
