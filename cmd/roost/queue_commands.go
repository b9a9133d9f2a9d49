package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"roost/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the scheduling queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []api.Entry
			if client := ctx.apiClient(); client != nil {
				resp, err := client.queueList(kind, limit)
				if err != nil {
					return err
				}
				entries = resp.Entries
			} else {
				services, err := ctx.openServices()
				if err != nil {
					return err
				}
				defer services.close()
				entries, err = services.scheduler.List(cmd.Context(), kind, limit)
				if err != nil {
					return err
				}
			}

			if jsonOut {
				return writeJSON(cmd, api.QueueListResponse{Entries: entries})
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					strconv.FormatInt(entry.ID, 10),
					entry.Kind,
					entry.State,
					yesNo(entry.Ready),
					entry.LockedUntil,
					strconv.Itoa(entry.Attempts),
					entry.LastError,
				})
			}
			table := renderTable(
				[]string{"ID", "Kind", "State", "Ready", "Locked Until", "Attempts", "Last Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Limit to one entity kind (identity, post, fan_out)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries per kind")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit entries as JSON")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Resurrect parked entities so the scheduler retries them",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.RetryResponse
			if client := ctx.apiClient(); client != nil {
				var err error
				resp, err = client.retryParked(kind)
				if err != nil {
					return err
				}
			} else {
				services, err := ctx.openServices()
				if err != nil {
					return err
				}
				defer services.close()
				resp, err = services.scheduler.RetryParked(cmd.Context(), kind)
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resurrected %d parked entities\n", resp.Resurrected)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Limit to one entity kind")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove fan-outs that settled in the failed state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.ClearResponse
			if client := ctx.apiClient(); client != nil {
				var err error
				resp, err = client.clearFailed()
				if err != nil {
					return err
				}
			} else {
				services, err := ctx.openServices()
				if err != nil {
					return err
				}
				defer services.close()
				resp, err = services.scheduler.ClearFailedFanOuts(cmd.Context())
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d failed fan-outs\n", resp.Removed)
			return nil
		},
	}
}
