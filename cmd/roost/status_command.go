package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"roost/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := fetchStatus(ctx, cmd)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Roost Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStateLine("Running", yesNo(status.Running), status.Running, colorize))
			fmt.Fprintln(out, renderStateLine("Domain", status.Domain, true, colorize))
			fmt.Fprintln(out, renderStateLine("Database", status.DatabasePath, true, colorize))
			if status.Running {
				fmt.Fprintln(out, renderStateLine("PID", strconv.Itoa(status.PID), true, colorize))
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(status.Kinds))
			for _, kind := range status.Kinds {
				rows = append(rows, []string{
					kind.Kind,
					strconv.Itoa(kind.Total),
					strconv.Itoa(kind.Ready),
					strconv.Itoa(kind.Locked),
					strconv.Itoa(kind.Terminal),
					strconv.Itoa(kind.Errored),
				})
			}
			table := renderTable(
				[]string{"Kind", "Total", "Ready", "Locked", "Settled", "Errored"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit status as JSON")
	return cmd
}

// fetchStatus prefers the running daemon and falls back to reading the store
// directly when no daemon is reachable.
func fetchStatus(ctx *commandContext, cmd *cobra.Command) (api.DaemonStatus, error) {
	if client := ctx.apiClient(); client != nil {
		return client.status()
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return api.DaemonStatus{}, err
	}
	services, err := ctx.openServices()
	if err != nil {
		return api.DaemonStatus{}, err
	}
	defer services.close()

	status := api.DaemonStatus{
		Running:      false,
		Domain:       cfg.Server.Domain,
		DatabasePath: cfg.DatabasePath(),
	}
	kinds, err := services.scheduler.Summaries(cmd.Context())
	if err != nil {
		return api.DaemonStatus{}, err
	}
	status.Kinds = kinds
	return status, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
