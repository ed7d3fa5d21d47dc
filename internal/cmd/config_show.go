package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dativo-io/nexus/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect operator configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved operator configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		renderConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func renderConfig(w io.Writer, cfg *config.Config) {
	signing := "set"
	if cfg.UsingDefaultSigningKey() {
		signing = "derived (set NEXUS_SIGNING_KEY)"
	}
	apiKey := "unset"
	if cfg.CompletionAPIKey != "" {
		apiKey = "set"
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]interface{}{
		{config.KeyConfigRoot, cfg.ConfigRoot},
		{config.KeyDataDir, cfg.DataDir},
		{config.KeyDefaultTenant, orNone(cfg.DefaultTenant)},
		{config.KeySigningKey, signing},
		{config.KeyCompletionMode, cfg.CompletionMode},
		{config.KeyCompletionBaseURL, orNone(cfg.CompletionBaseURL)},
		{config.KeyCompletionAPIKey, apiKey},
		{config.KeyCompletionTimeout, cfg.CompletionTimeout},
		{config.KeyGuardianPolicy, orNone(cfg.GuardianPolicy)},
		{config.KeyBudgetPolicy, orNone(cfg.BudgetPolicy)},
		{config.KeyPIIPatterns, orNone(cfg.PIIPatterns)},
		{config.KeyRedisAddr, orNone(cfg.RedisAddr)},
		{config.KeyMaxTurns, cfg.MaxTurns},
		{config.KeySummaryChars, cfg.SummaryChars},
		{config.KeyContextChars, cfg.ContextChars},
		{config.KeySnippetTopK, cfg.SnippetTopK},
		{config.KeyGroundingRetries, cfg.GroundingRetries},
		{config.KeyLowConfidenceThreshold, cfg.LowConfidenceThreshold},
		{config.KeyProactiveCron, cfg.ProactiveCron},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", r[0], r[1])
	}
	_ = tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
