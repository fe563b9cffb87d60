package logprocessing

import (
	"strconv"
	"strings"

	"github.com/faceair/drain"
)

// DrainConfig holds configuration for the Drain algorithm wrapper.
// These parameters control how log lines are clustered into templates.
type DrainConfig struct {
	// LogClusterDepth controls the depth of the parse tree (minimum 3).
	LogClusterDepth int

	// SimTh is the similarity threshold. Higher values require more equal tokens
	// before two lines share a template.
	SimTh float64

	// MaxChildren limits branches per node to prevent explosion from variable-starting lines.
	MaxChildren int

	// MaxClusters limits the number of templates (0 = unlimited).
	MaxClusters int

	// ExtraDelimiters are additional token separators beyond whitespace.
	ExtraDelimiters []string

	// ParamString is the wildcard placeholder used in templates.
	ParamString string
}

// DefaultDrainConfig returns the configuration used for CI build output.
// Build logs repeat the same progress and test lines with different counters, paths and
// durations, so a moderate threshold collapses them without merging distinct errors.
func DefaultDrainConfig() DrainConfig {
	return DrainConfig{
		LogClusterDepth: 4,
		SimTh:           0.5,
		MaxChildren:     100,
		MaxClusters:     0,
		ExtraDelimiters: []string{"=", ":"},
		ParamString:     "<*>",
	}
}

// DrainProcessor wraps the Drain algorithm with configurable parameters.
// A DrainProcessor is not safe for concurrent use.
type DrainProcessor struct {
	drain *drain.Drain
}

// NewDrainProcessor creates a new Drain processor with the given configuration.
func NewDrainProcessor(config DrainConfig) *DrainProcessor {
	return &DrainProcessor{
		drain: drain.New(&drain.Config{
			LogClusterDepth: config.LogClusterDepth,
			SimTh:           config.SimTh,
			MaxChildren:     config.MaxChildren,
			MaxClusters:     config.MaxClusters,
			ExtraDelimiters: config.ExtraDelimiters,
			ParamString:     config.ParamString,
		}),
	}
}

// Train adds a line to the model and returns its cluster.
func (dp *DrainProcessor) Train(line string) *drain.LogCluster {
	return dp.drain.Train(line)
}

// Match finds the best matching cluster for a line without updating the model.
func (dp *DrainProcessor) Match(line string) *drain.LogCluster {
	return dp.drain.Match(line)
}

// extractPattern returns the template part of Drain's cluster string.
// Drain cluster.String() format: "id={X} : size={Y} : [pattern]"
func extractPattern(clusterStr string) string {
	lastSep := strings.LastIndex(clusterStr, " : ")
	if lastSep == -1 {
		return clusterStr
	}
	return strings.TrimSpace(clusterStr[lastSep+3:])
}

// extractClusterID returns X from "id={X} : ...", or -1.
func extractClusterID(clusterStr string) int {
	rest, ok := strings.CutPrefix(clusterStr, "id={")
	if !ok {
		return -1
	}
	end := strings.IndexByte(rest, '}')
	if end == -1 {
		return -1
	}
	id, err := strconv.Atoi(rest[:end])
	if err != nil {
		return -1
	}
	return id
}
