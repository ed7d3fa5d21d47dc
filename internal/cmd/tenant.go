package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/nexus/internal/config"
	"github.com/dativo-io/nexus/internal/tenant"
)

var (
	tenantName     string
	tenantLanguage string
	tenantTimezone string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Create and inspect tenant configuration",
}

var tenantInitCmd = &cobra.Command{
	Use:   "init [tenant-id]",
	Short: "Scaffold a tenant directory with an identity file and empty overlays",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "tenant.init")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		name := tenantName
		if name == "" {
			name = args[0]
		}
		root := tenant.NewResolver(cfg.ConfigRoot, "").TenantsRoot()
		written, err := tenant.Scaffold(root, args[0], name, tenantLanguage, tenantTimezone)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(written) == 0 {
			fmt.Fprintf(out, "Tenant %s already exists, nothing written.\n", args[0])
			return nil
		}
		fmt.Fprintf(out, "Created tenant %s:\n", args[0])
		for _, p := range written {
			fmt.Fprintf(out, "  %s\n", p)
		}
		return nil
	},
}

var tenantShowCmd = &cobra.Command{
	Use:   "show [tenant-id]",
	Short: "Print the merged configuration of a tenant as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "tenant.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		tc, err := tenant.NewResolver(cfg.ConfigRoot, "").Load(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(tc)
	},
}

func init() {
	tenantInitCmd.Flags().StringVar(&tenantName, "name", "", "business name (default: tenant id)")
	tenantInitCmd.Flags().StringVar(&tenantLanguage, "language", tenant.DefaultLanguage, "reply language")
	tenantInitCmd.Flags().StringVar(&tenantTimezone, "timezone", tenant.DefaultTimezone, "IANA timezone")

	tenantCmd.AddCommand(tenantInitCmd)
	tenantCmd.AddCommand(tenantShowCmd)
	rootCmd.AddCommand(tenantCmd)
}
