package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/nexus/internal/audit"
	"github.com/dativo-io/nexus/internal/budget"
	"github.com/dativo-io/nexus/internal/config"
)

var costsTenant string

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show today's completion spend per tier and the daily budget status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "costs")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		pol, err := budget.LoadPolicy(cfg.BudgetPolicy)
		if err != nil {
			return err
		}
		store, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer store.Close()

		now := time.Now().UTC()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		recs, err := store.ListDecisions(ctx, audit.Filter{
			TenantID: costsTenant,
			From:     dayStart,
			To:       dayStart.Add(24 * time.Hour),
		})
		if err != nil {
			return fmt.Errorf("querying decisions: %w", err)
		}

		byTier := make(map[string]float64)
		for _, r := range recs {
			byTier[r.Tier] += r.CostUSD
		}
		label := costsTenant
		if label == "" {
			label = "(all tenants)"
		}
		renderCostsByTier(cmd.OutOrStdout(), label, byTier, pol.DailyCapUSD)
		return nil
	},
}

// renderCostsByTier writes the per-tier table and the budget line to w.
func renderCostsByTier(w io.Writer, tenantID string, byTier map[string]float64, dailyCap float64) {
	tiers := make([]string, 0, len(byTier))
	for t := range byTier {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)

	fmt.Fprintf(w, "Tenant: %s\n", tenantID)
	fmt.Fprintf(w, "%-12s %14s\n", "Tier", "Today")
	fmt.Fprintf(w, "%-12s %14s\n", "----", "-----")
	var total float64
	for _, t := range tiers {
		total += byTier[t]
		fmt.Fprintf(w, "%-12s $%13s\n", t, formatCost(byTier[t]))
	}
	if len(tiers) > 0 {
		fmt.Fprintf(w, "%-12s %14s\n", "----", "-----")
	}
	fmt.Fprintf(w, "%-12s $%13s\n", "Total", formatCost(total))
	if dailyCap > 0 {
		fmt.Fprintf(w, "  Daily budget: %.1f%% ($%s / $%.2f) %s\n",
			100*total/dailyCap, formatCost(total), dailyCap, budget.StatusFor(total, dailyCap))
	}
}

func init() {
	rootCmd.AddCommand(costsCmd)
	costsCmd.Flags().StringVar(&costsTenant, "tenant", "", "tenant ID (default: all tenants)")
}
