// Package persistence snapshots the in-memory incident, cluster and lineage stores to a
// JSON file and restores them at startup.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/moolen/faultline/internal/cluster"
	"github.com/moolen/faultline/internal/incident"
	"github.com/moolen/faultline/internal/lineage"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
)

// SnapshotVersion is the format version written by this package.
const SnapshotVersion = 1

// DefaultInterval is the snapshot period when none is configured.
const DefaultInterval = 5 * time.Minute

// SnapshotData is the on-disk format.
type SnapshotData struct {
	Version   int                    `json:"version"`
	Timestamp int64                  `json:"timestamp"` // unix nanoseconds
	Incidents []*models.Incident     `json:"incidents"`
	Clusters  []*models.Cluster      `json:"clusters"`
	Lineage   []*models.LineageEntry `json:"lineage"`
}

// Stores are the stores captured in a snapshot.
type Stores struct {
	Incidents *incident.Store
	Clusters  *cluster.Engine
	Lineage   *lineage.Tracker
}

// Manager periodically writes snapshots. It implements lifecycle.Component.
type Manager struct {
	path     string
	interval time.Duration
	stores   Stores
	logger   *logging.Logger

	mu     sync.Mutex // serializes writes
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager writing to path every interval.
func NewManager(path string, interval time.Duration, stores Stores) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		path:     path,
		interval: interval,
		stores:   stores,
		logger:   logging.GetLogger("persistence"),
	}
}

// Name implements lifecycle.Component.
func (m *Manager) Name() string {
	return "persistence"
}

// Start restores the last snapshot, if any, and starts the snapshot loop.
func (m *Manager) Start(ctx context.Context) error {
	if m.done != nil {
		return nil
	}
	if err := m.Load(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(loopCtx)

	m.logger.Info("Snapshots enabled: path=%s interval=%s", m.path, m.interval)
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Snapshot(); err != nil {
				m.logger.Error("Snapshot failed: %v", err)
			}
		}
	}
}

// Stop ends the loop and writes a final snapshot.
func (m *Manager) Stop(ctx context.Context) error {
	if m.done == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.done = nil
	return m.Snapshot()
}

// Snapshot writes the current state through a temporary file and an atomic rename.
func (m *Manager) Snapshot() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := SnapshotData{
		Version:   SnapshotVersion,
		Timestamp: time.Now().UnixNano(),
		Incidents: m.stores.Incidents.List(),
		Clusters:  m.stores.Clusters.List(),
		Lineage:   m.stores.Lineage.List(),
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	m.logger.Debug("Snapshot written: %d incidents, %d clusters, %d lineage entries",
		len(data.Incidents), len(data.Clusters), len(data.Lineage))
	return nil
}

// Load restores state from the snapshot file. A missing file is not an error.
func (m *Manager) Load() error {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Info("No snapshot at %s, starting empty", m.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var data SnapshotData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if data.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", data.Version)
	}

	if err := m.stores.Incidents.Restore(data.Incidents); err != nil {
		return fmt.Errorf("restore incidents: %w", err)
	}
	if err := m.stores.Clusters.Restore(data.Clusters); err != nil {
		return fmt.Errorf("restore clusters: %w", err)
	}
	if err := m.stores.Lineage.Restore(data.Lineage); err != nil {
		return fmt.Errorf("restore lineage: %w", err)
	}

	m.logger.Info("Restored snapshot from %s: %d incidents, %d clusters, %d lineage entries",
		time.Unix(0, data.Timestamp).Format(time.RFC3339), len(data.Incidents), len(data.Clusters), len(data.Lineage))
	return nil
}
