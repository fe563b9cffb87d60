// Package lineage keeps the occurrence history of every fingerprint, independent of
// cluster membership.
package lineage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/moolen/faultline/internal/models"
)

// ErrNotFound is returned when no entry exists for a fingerprint.
var ErrNotFound = errors.New("lineage entry not found")

// entry guards one LineageEntry so that updates to different fingerprints do not contend.
type entry struct {
	mu   sync.Mutex
	data models.LineageEntry
}

// Tracker owns the lineage map. It is safe for concurrent use.
type Tracker struct {
	// mu protects entries and order, not the entries themselves.
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	now func() time.Time
}

// NewTracker creates an empty tracker. A nil clock means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// Record adds one occurrence of fingerprint and returns a copy of the updated entry.
// repo may be empty.
func (t *Tracker) Record(fingerprint, incidentID, repo, language string) *models.LineageEntry {
	e := t.getOrCreate(fingerprint)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	if e.data.FirstSeen.IsZero() {
		e.data.FirstSeen = now
	}
	e.data.LastSeen = now
	e.data.IncidentIDs = append(e.data.IncidentIDs, incidentID)
	e.data.OccurrenceCount = len(e.data.IncidentIDs)
	e.data.Repos.Add(repo)
	e.data.Languages.Add(language)

	return e.data.Clone()
}

// getOrCreate uses double-checked locking so that lookups of existing fingerprints only
// take the read lock.
func (t *Tracker) getOrCreate(fingerprint string) *entry {
	t.mu.RLock()
	e, ok := t.entries[fingerprint]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[fingerprint]; ok {
		return e
	}
	e = &entry{data: models.LineageEntry{Fingerprint: fingerprint}}
	t.entries[fingerprint] = e
	t.order = append(t.order, fingerprint)
	return e
}

// Get returns a copy of the entry for fingerprint.
func (t *Tracker) Get(fingerprint string) (*models.LineageEntry, error) {
	t.mu.RLock()
	e, ok := t.entries[fingerprint]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.Clone(), nil
}

// List returns copies of all entries in order of first occurrence.
func (t *Tracker) List() []*models.LineageEntry {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.order))
	for _, fp := range t.order {
		entries = append(entries, t.entries[fp])
	}
	t.mu.RUnlock()

	out := make([]*models.LineageEntry, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.data.Clone())
		e.mu.Unlock()
	}
	return out
}

// Len returns the number of fingerprints tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reset drops all entries.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*entry)
	t.order = nil
}

// Restore replaces the tracker state. OccurrenceCount is recomputed from IncidentIDs.
func (t *Tracker) Restore(entries []*models.LineageEntry) error {
	byFP := make(map[string]*entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, le := range entries {
		if _, dup := byFP[le.Fingerprint]; dup {
			return fmt.Errorf("duplicate lineage entry for fingerprint %s", le.Fingerprint)
		}
		data := le.Clone()
		data.OccurrenceCount = len(data.IncidentIDs)
		byFP[le.Fingerprint] = &entry{data: *data}
		order = append(order, le.Fingerprint)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return byFP[order[i]].data.FirstSeen.Before(byFP[order[j]].data.FirstSeen)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = byFP
	t.order = order
	return nil
}
