package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/nexus/internal/config"
	"github.com/dativo-io/nexus/internal/orchestration"
	"github.com/dativo-io/nexus/internal/pipeline"
)

var (
	routeTenant        string
	routeSender        string
	routeChannel       string
	routeSession       string
	routeActionTool    string
	routeActionCommand string
	routeConfirmed     bool
)

var routeCmd = &cobra.Command{
	Use:   "route [message]",
	Short: "Run one message through the pipeline and print the outcome as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeTenant, "tenant", "", "tenant id (default: configured default_tenant)")
	routeCmd.Flags().StringVar(&routeSender, "sender", "cli", "sender id")
	routeCmd.Flags().StringVar(&routeChannel, "channel", "web", "channel name")
	routeCmd.Flags().StringVar(&routeSession, "session", "", "session id (default: tenant:channel:sender)")
	routeCmd.Flags().StringVar(&routeActionTool, "action-tool", "", "request an explicit tool action")
	routeCmd.Flags().StringVar(&routeActionCommand, "action-command", "", "command argument of the tool action")
	routeCmd.Flags().BoolVar(&routeConfirmed, "confirmed", false, "the user confirmed the action")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "route")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	msg := pipeline.Message{
		TenantID:  routeTenant,
		SenderID:  routeSender,
		Channel:   routeChannel,
		SessionID: routeSession,
		Text:      strings.Join(args, " "),
		Confirmed: routeConfirmed,
	}
	if routeActionTool != "" {
		msg.Action = &orchestration.Action{Tool: routeActionTool, Args: map[string]interface{}{}}
		if routeActionCommand != "" {
			msg.Action.Args["command"] = routeActionCommand
		}
	}

	out, err := rt.pipeline.Process(ctx, msg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
