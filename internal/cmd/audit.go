package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/config"
)

var (
	auditTenant string
	auditLimit  int
	auditOutput string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query, verify and export decision records",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decision records",
	RunE:  auditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [request-id]",
	Short: "Verify the HMAC signature of a decision record",
	Args:  cobra.ExactArgs(1),
	RunE:  auditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decision records as a JSON list (input for calibrate)",
	RunE:  auditExport,
}

func init() {
	auditCmd.PersistentFlags().StringVar(&auditTenant, "tenant", "", "Filter by tenant ID")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum records to show")
	auditExportCmd.Flags().StringVar(&auditOutput, "output", "", "Output file (default: stdout)")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAuditStore() (*audit.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	recs, err := store.ListDecisions(ctx, audit.Filter{TenantID: auditTenant, Limit: auditLimit})
	if err != nil {
		return fmt.Errorf("querying decisions: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No decision records found.")
		return nil
	}
	renderAuditList(cmd.OutOrStdout(), recs)
	return nil
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	requestID := args[0]
	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	valid, err := store.Verify(ctx, requestID)
	if err != nil {
		return fmt.Errorf("verifying decision: %w", err)
	}
	renderVerifyResult(cmd.OutOrStdout(), requestID, valid)
	if !valid {
		return fmt.Errorf("signature verification failed for %s", requestID)
	}
	return nil
}

func auditExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	recs, err := store.ListDecisions(ctx, audit.Filter{TenantID: auditTenant})
	if err != nil {
		return fmt.Errorf("querying decisions: %w", err)
	}

	w := cmd.OutOrStdout()
	if auditOutput != "" {
		f, err := os.Create(auditOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", auditOutput, err)
		}
		defer f.Close()
		w = f
	}
	return audit.WriteJSON(w, recs)
}

// renderAuditList writes one line per decision record.
func renderAuditList(w io.Writer, recs []audit.DecisionRecord) {
	fmt.Fprintf(w, "Decision Records (showing %d):\n\n", len(recs))
	for i := range recs {
		r := &recs[i]
		status := "✓"
		if !r.GroundingPassed {
			status = "✗"
		}
		escalated := ""
		if r.Escalated {
			escalated = " [ESCALATED]"
		}
		fmt.Fprintf(w, "  %s %s | %s | %s | %s/%s/%s | conf %.3f | $%s | %dms%s\n",
			status,
			r.RequestID,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.TenantID,
			r.PredictedIntent,
			r.Tier,
			r.RiskLevel,
			r.Confidence,
			formatCost(r.CostUSD),
			r.LatencyMS,
			escalated,
		)
	}
}

// renderVerifyResult writes the verify outcome to w.
func renderVerifyResult(w io.Writer, requestID string, valid bool) {
	if valid {
		fmt.Fprintf(w, "✓ Decision %s: signature VALID (HMAC-SHA256 intact)\n", requestID)
	} else {
		fmt.Fprintf(w, "✗ Decision %s: signature INVALID (possible tampering)\n", requestID)
	}
}
