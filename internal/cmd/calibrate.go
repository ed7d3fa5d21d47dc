package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/calibration"
	"github.com/dativo-io/nexus/internal/config"
)

var (
	calibrateInput     string
	calibrateOutput    string
	calibrateTenant    string
	calibrateThreshold float64
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Recommend a low-confidence threshold from logged decisions",
	Long: `Counts false escalations and false passes over decision rows and
recommends a new low-confidence threshold.

Rows come from --input (a JSON list with predicted_intent, expected_intent,
confidence and escalated) or, without it, from the audit database. Audit
rows carry no expected intent, so only escalations can be judged there.`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateInput, "input", "", "JSON file of decision rows (default: audit database)")
	calibrateCmd.Flags().StringVar(&calibrateOutput, "output", "", "write the JSON report to this file")
	calibrateCmd.Flags().StringVar(&calibrateTenant, "tenant", "", "only rows of this tenant (audit database only)")
	calibrateCmd.Flags().Float64Var(&calibrateThreshold, "current-threshold", -1, "current low-confidence threshold (default: configured value)")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "calibrate")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	threshold := calibrateThreshold
	if threshold < 0 {
		threshold = cfg.LowConfidenceThreshold
	}

	var samples []calibration.Sample
	if calibrateInput != "" {
		samples, err = calibration.LoadSamples(calibrateInput)
	} else {
		samples, err = samplesFromAudit(ctx, cfg, calibrateTenant)
	}
	if err != nil {
		return err
	}

	report := calibration.Analyze(samples, threshold)
	if calibrateOutput != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(calibrateOutput, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	return nil
}

func samplesFromAudit(ctx context.Context, cfg *config.Config, tenantID string) ([]calibration.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	defer store.Close()

	recs, err := store.ListDecisions(ctx, audit.Filter{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	samples := make([]calibration.Sample, 0, len(recs))
	for _, r := range recs {
		samples = append(samples, calibration.FromRecord(r))
	}
	return samples, nil
}
