// Package cluster groups incidents whose fingerprints are equal.
//
// Membership is exclusive: a fingerprint belongs to at most one cluster, found through a
// reverse index. There is no similarity matching.
package cluster

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
)

// ErrNotFound is returned when a cluster id is unknown.
var ErrNotFound = errors.New("cluster not found")

// Assignment is the outcome of Engine.Assign.
type Assignment struct {
	ClusterID string
	Created   bool
}

// Engine owns the cluster map. All methods are safe for concurrent use; find-or-create
// runs under a single lock so concurrent runs with the same fingerprint cannot both
// create a cluster.
type Engine struct {
	mu            sync.Mutex
	clusters      map[string]*models.Cluster
	byFingerprint map[string]string
	order         []string

	now    func() time.Time
	newID  func() string
	logger *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides cluster id generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clusters:      make(map[string]*models.Cluster),
		byFingerprint: make(map[string]string),
		now:           time.Now,
		newID:         NewClusterID,
		logger:        logging.GetLogger("cluster"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewClusterID returns "cluster-" followed by 8 hex characters.
func NewClusterID() string {
	return "cluster-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Assign resolves fingerprint to its cluster, creating one with incidentID as primary
// incident when the fingerprint is new. Empty or UNKNOWN exceptions are not recorded.
func (e *Engine) Assign(incidentID, fingerprint, language, exception string) Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if id, ok := e.byFingerprint[fingerprint]; ok {
		c := e.clusters[id]
		if !slices.Contains(c.IncidentIDs, incidentID) {
			c.IncidentIDs = append(c.IncidentIDs, incidentID)
		}
		c.Fingerprints.Add(fingerprint)
		c.Languages.Add(language)
		addException(&c.Exceptions, exception)
		c.LastSeen = now

		e.logger.DebugWithFields("incident merged into cluster",
			logging.Field("cluster_id", id),
			logging.Field("incident_id", incidentID),
			logging.Field("size", len(c.IncidentIDs)),
		)
		return Assignment{ClusterID: id}
	}

	id := e.uniqueID()
	c := &models.Cluster{
		ID:              id,
		PrimaryIncident: incidentID,
		IncidentIDs:     []string{incidentID},
		Fingerprints:    models.NewStringSet(fingerprint),
		Languages:       models.NewStringSet(language),
		CreatedAt:       now,
		LastSeen:        now,
	}
	addException(&c.Exceptions, exception)

	e.clusters[id] = c
	e.byFingerprint[fingerprint] = id
	e.order = append(e.order, id)

	e.logger.InfoWithFields("cluster created",
		logging.Field("cluster_id", id),
		logging.Field("incident_id", incidentID),
		logging.Field("language", language),
	)
	return Assignment{ClusterID: id, Created: true}
}

// Unassign removes incidentID from a cluster. A cluster left without members is
// dropped along with its fingerprint index entries; otherwise the primary incident
// moves to the oldest remaining member when it was the one removed.
func (e *Engine) Unassign(clusterID, incidentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clusters[clusterID]
	if !ok {
		return
	}
	c.IncidentIDs = slices.DeleteFunc(c.IncidentIDs, func(id string) bool { return id == incidentID })

	if len(c.IncidentIDs) == 0 {
		delete(e.clusters, clusterID)
		for fp, id := range e.byFingerprint {
			if id == clusterID {
				delete(e.byFingerprint, fp)
			}
		}
		e.order = slices.DeleteFunc(e.order, func(id string) bool { return id == clusterID })
		e.logger.DebugWithFields("cluster dropped",
			logging.Field("cluster_id", clusterID),
			logging.Field("incident_id", incidentID),
		)
		return
	}
	if c.PrimaryIncident == incidentID {
		c.PrimaryIncident = c.IncidentIDs[0]
	}
}

// uniqueID regenerates on the unlikely collision with an existing id. Caller holds mu.
func (e *Engine) uniqueID() string {
	for {
		id := e.newID()
		if _, exists := e.clusters[id]; !exists {
			return id
		}
	}
}

func addException(set *models.StringSet, exception string) {
	if exception == "" || exception == models.Unknown {
		return
	}
	set.Add(exception)
}

// Lookup returns the cluster id holding fingerprint.
func (e *Engine) Lookup(fingerprint string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byFingerprint[fingerprint]
	return id, ok
}

// Get returns a copy of a cluster.
func (e *Engine) Get(id string) (*models.Cluster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clusters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Clone(), nil
}

// List returns copies of all clusters in creation order.
func (e *Engine) List() []*models.Cluster {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.Cluster, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.clusters[id].Clone())
	}
	return out
}

// Len returns the number of clusters.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clusters)
}

// Reset drops all clusters.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clusters = make(map[string]*models.Cluster)
	e.byFingerprint = make(map[string]string)
	e.order = nil
}

// Restore replaces the engine state with clusters, rebuilding the reverse index.
// It fails if two clusters claim the same fingerprint or share an id.
func (e *Engine) Restore(clusters []*models.Cluster) error {
	byID := make(map[string]*models.Cluster, len(clusters))
	byFP := make(map[string]string)
	for _, c := range clusters {
		if _, dup := byID[c.ID]; dup {
			return fmt.Errorf("duplicate cluster id %s", c.ID)
		}
		byID[c.ID] = c.Clone()
		for _, fp := range c.Fingerprints.Values() {
			if owner, taken := byFP[fp]; taken {
				return fmt.Errorf("fingerprint %s claimed by clusters %s and %s", fp, owner, c.ID)
			}
			byFP[fp] = c.ID
		}
	}

	order := make([]string, 0, len(byID))
	for id := range byID {
		order = append(order, id)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := byID[order[i]], byID[order[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	e.clusters = byID
	e.byFingerprint = byFP
	e.order = order
	return nil
}
