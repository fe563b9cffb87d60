// Package regression matches a new incident analysis against previously analyzed
// incidents.
package regression

import (
	"context"
	"fmt"
	"strings"

	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/vectorindex"
)

const (
	DefaultCollection = "incidents_history"
	DefaultTopK       = 3
	DefaultThreshold  = 0.85

	// PayloadIncidentID is the payload key linking a history entry to its incident.
	PayloadIncidentID = "incident_id"
)

// Config configures a Detector.
type Config struct {
	Collection string
	TopK       int
	Threshold  float64
}

// DefaultConfig returns the default history collection, k and threshold.
func DefaultConfig() Config {
	return Config{
		Collection: DefaultCollection,
		TopK:       DefaultTopK,
		Threshold:  DefaultThreshold,
	}
}

// Detector searches the history collection for similar analyses.
type Detector struct {
	index  vectorindex.Index
	config Config
	logger *logging.Logger
}

// NewDetector creates a detector over index. Zero config fields take their defaults.
func NewDetector(index vectorindex.Index, config Config) *Detector {
	def := DefaultConfig()
	if config.Collection == "" {
		config.Collection = def.Collection
	}
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	return &Detector{
		index:  index,
		config: config,
		logger: logging.GetLogger("regression"),
	}
}

// Detect returns the first of the top-k history hits whose similarity reaches the
// threshold, skipping hits that belong to incidentID itself. Search failures are logged
// and reported as no match; Detect never fails.
func (d *Detector) Detect(ctx context.Context, incidentID, analysis string) *models.RegressionMatch {
	if strings.TrimSpace(analysis) == "" {
		return nil
	}

	hits, err := d.index.Search(ctx, analysis, d.config.Collection, d.config.TopK)
	if err != nil {
		d.logger.WarnWithFields("regression search failed",
			logging.Field("incident_id", incidentID),
			logging.Field("collection", d.config.Collection),
			logging.Field("error", err.Error()),
		)
		return nil
	}

	for _, hit := range hits {
		matched := hit.Payload[PayloadIncidentID]
		if matched == "" || matched == incidentID {
			continue
		}
		if hit.Score >= d.config.Threshold {
			d.logger.InfoWithFields("regression detected",
				logging.Field("incident_id", incidentID),
				logging.Field("regression_of", matched),
				logging.Field("similarity", hit.Score),
			)
			return &models.RegressionMatch{MatchedIncident: matched, Similarity: hit.Score}
		}
	}
	return nil
}

// Remember indexes an analysis into the history collection so later incidents can match it.
func (d *Detector) Remember(ctx context.Context, incidentID, analysis string) error {
	err := d.index.Index(ctx, analysis, d.config.Collection, map[string]string{PayloadIncidentID: incidentID})
	if err != nil {
		return fmt.Errorf("index incident %s into %s: %w", incidentID, d.config.Collection, err)
	}
	return nil
}
