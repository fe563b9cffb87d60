// Package incident stores analyzed incidents. Records are write-once.
package incident

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/moolen/faultline/internal/models"
)

var (
	// ErrNotFound is returned when an incident id is unknown.
	ErrNotFound = errors.New("incident not found")
	// ErrAlreadyExists is returned when saving an id that is already stored.
	ErrAlreadyExists = errors.New("incident already exists")
)

// NoSummary is the summary of an incident without analysis text.
const NoSummary = "No summary available"

// Store holds incidents in memory. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	incidents map[string]*models.Incident
	// reserved ids are claimed by in-flight runs but not yet saved.
	reserved map[string]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		incidents: make(map[string]*models.Incident),
		reserved:  make(map[string]struct{}),
	}
}

// Reserve claims id for a run that will later Save it. It fails when the id is stored or
// already reserved.
func (s *Store) Reserve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	if _, ok := s.reserved[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	s.reserved[id] = struct{}{}
	return nil
}

// Release drops a reservation that will not be saved.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, id)
}

// Save stores a copy of inc. A reservation for inc.ID is consumed.
func (s *Store) Save(inc *models.Incident) error {
	if inc == nil || inc.ID == "" {
		return fmt.Errorf("incident must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[inc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, inc.ID)
	}
	delete(s.reserved, inc.ID)
	s.incidents[inc.ID] = inc.Clone()
	return nil
}

// Get returns a copy of the incident.
func (s *Store) Get(id string) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inc.Clone(), nil
}

// List returns copies of all incidents, newest first. Ties are ordered by id.
func (s *Store) List() []*models.Incident {
	s.mu.RLock()
	out := make([]*models.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, inc.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Len returns the number of stored incidents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

// Reset drops all incidents and reservations.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = make(map[string]*models.Incident)
	s.reserved = make(map[string]struct{})
}

// Restore replaces the stored incidents.
func (s *Store) Restore(incidents []*models.Incident) error {
	byID := make(map[string]*models.Incident, len(incidents))
	for _, inc := range incidents {
		if _, dup := byID[inc.ID]; dup {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, inc.ID)
		}
		byID[inc.ID] = inc.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = byID
	s.reserved = make(map[string]struct{})
	return nil
}

// Summarize flattens analysis text to one line and truncates it to maxLen characters
// followed by "...". Empty text yields NoSummary.
func Summarize(analysis string, maxLen int) string {
	text := strings.Join(strings.Fields(analysis), " ")
	if text == "" {
		return NoSummary
	}
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
