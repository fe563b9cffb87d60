package models

import "time"

// Cluster groups incidents whose fingerprints are equal. PrimaryIncident is set at
// creation and never reassigned; IncidentIDs and the sets only grow.
type Cluster struct {
	ID              string    `json:"cluster_id"`
	PrimaryIncident string    `json:"primary_incident"`
	IncidentIDs     []string  `json:"incident_ids"`
	Fingerprints    StringSet `json:"fingerprints"`
	Languages       StringSet `json:"languages"`
	Exceptions      StringSet `json:"exceptions"`
	CreatedAt       time.Time `json:"created_at"`
	LastSeen        time.Time `json:"last_seen"`
}

// Clone returns a deep copy of the cluster.
func (c *Cluster) Clone() *Cluster {
	if c == nil {
		return nil
	}
	out := *c
	out.IncidentIDs = append([]string{}, c.IncidentIDs...)
	out.Fingerprints = c.Fingerprints.Clone()
	out.Languages = c.Languages.Clone()
	out.Exceptions = c.Exceptions.Clone()
	return &out
}

// LineageEntry is the occurrence history of one fingerprint.
// OccurrenceCount always equals len(IncidentIDs).
type LineageEntry struct {
	Fingerprint     string    `json:"fingerprint"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	OccurrenceCount int       `json:"occurrence_count"`
	IncidentIDs     []string  `json:"incident_ids"`
	Repos           StringSet `json:"repos"`
	Languages       StringSet `json:"languages"`
}

// Clone returns a deep copy of the entry.
func (e *LineageEntry) Clone() *LineageEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.IncidentIDs = append([]string{}, e.IncidentIDs...)
	out.Repos = e.Repos.Clone()
	out.Languages = e.Languages.Clone()
	return &out
}
