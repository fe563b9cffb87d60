package commands

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/moolen/faultline/internal/fingerprint"
	"github.com/moolen/faultline/internal/signal"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint [log file]",
	Short: "Print the failure signature of a log without analyzing it",
	Long: `Extract the failure blocks of a log, detect its language and print the
fingerprint, exception and failing line. Reads stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFingerprint,
}

// signatureOutput is printed by the fingerprint command.
type signatureOutput struct {
	Language    string `json:"language"`
	Fingerprint string `json:"fingerprint"`
	Exception   string `json:"exception"`
	FailingLine string `json:"failing_line"`
	Blocks      int    `json:"blocks"`
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	var rs *signal.RuleSet
	if cfg.Rules.Path != "" {
		if rs, err = signal.LoadRuleFile(cfg.Rules.Path); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(signatureOf(signal.NewAnalyzer(rs), string(data)))
}

// signatureOf computes the same signature as the signal step of the pipeline.
func signatureOf(analyzer *signal.Analyzer, text string) signatureOutput {
	extraction := analyzer.ExtractFailureBlocks(text)
	language := analyzer.DetectLanguage(text)
	sig := fingerprint.Extract(text, language)
	return signatureOutput{
		Language:    language,
		Fingerprint: sig.Fingerprint,
		Exception:   sig.ExceptionOrUnknown(),
		FailingLine: sig.FailingLineOrUnknown(),
		Blocks:      len(extraction.Blocks),
	}
}
