package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/pipeline"
)

var (
	analyzeConcurrency int
	analyzeRender      bool
	analyzeRepo        string
	analyzePR          int
	analyzeStore       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [log files...]",
	Short: "Analyze CI log files and print the resulting incidents",
	Long: `Run the incident pipeline over one or more log files ("-" reads stdin).
Files are analyzed concurrently; results are printed in argument order as JSON,
or as rendered markdown with --render.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 4, "Maximum number of logs analyzed at once")
	analyzeCmd.Flags().BoolVar(&analyzeRender, "render", false, "Render results as terminal markdown instead of JSON")
	analyzeCmd.Flags().StringVar(&analyzeRepo, "repo", "", "Repository (owner/name) to comment on")
	analyzeCmd.Flags().IntVar(&analyzePR, "pr", 0, "Pull request number to comment on")
	analyzeCmd.Flags().BoolVar(&analyzeStore, "store", false, "Write each log to the object store")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	restore := logging.SetOutput(os.Stderr, os.Stderr)
	defer restore()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		if err := a.stop(stopCtx); err != nil {
			logging.GetLogger("analyze").Error("Error during shutdown: %v", err)
		}
	}()

	results, err := analyzeFiles(ctx, a.pipeline, args, analyzeConcurrency, func(path string) ([]byte, error) {
		if path == "-" {
			return io.ReadAll(cmd.InOrStdin())
		}
		return os.ReadFile(path)
	})
	if err != nil {
		return err
	}
	return printResults(cmd.OutOrStdout(), results, analyzeRender)
}

// fileResult is the outcome for one input file.
type fileResult struct {
	Path   string           `json:"path"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// analyzeFiles runs the pipeline over paths with at most concurrency runs in flight.
// A failing file is reported in its result; only read errors abort.
func analyzeFiles(ctx context.Context, analyzer interface {
	Analyze(context.Context, pipeline.Submission) (*pipeline.Result, error)
}, paths []string, concurrency int, read func(string) ([]byte, error)) ([]fileResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			data, err := read(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			results[i].Path = path
			res, err := analyzer.Analyze(gctx, pipeline.Submission{
				LogText:  string(data),
				Repo:     analyzeRepo,
				PRNumber: analyzePR,
				Store:    analyzeStore,
			})
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printResults(w io.Writer, results []fileResult, render bool) error {
	if !render {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	for _, r := range results {
		out, err := renderer.Render(resultMarkdown(r))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, out); err != nil {
			return err
		}
	}
	return nil
}

// resultMarkdown renders one file result: the notification body followed by the full
// analysis.
func resultMarkdown(r fileResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", r.Path)
	if r.Error != "" {
		fmt.Fprintf(&b, "**Analysis failed:** %s\n", r.Error)
		return b.String()
	}
	inc := r.Result.Incident
	b.WriteString(pipeline.FormatNotification(inc))
	if r.Result.Gated {
		b.WriteString("\n_No failure signal found; the model was not consulted._\n")
		return b.String()
	}
	if degraded := r.Result.Degraded(); len(degraded) > 0 {
		fmt.Fprintf(&b, "\n_Degraded steps: %s_\n", strings.Join(degraded, ", "))
	}
	fmt.Fprintf(&b, "\n#### Analysis\n\n%s\n", inc.AnalysisText)
	return b.String()
}
