package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"roost/internal/api"
)

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "timeline <username>",
		Short: "Show a local identity's timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]

			var resp api.TimelineResponse
			if client := ctx.apiClient(); client != nil {
				var err error
				resp, err = client.timeline(username, limit)
				if err != nil {
					return err
				}
			} else {
				services, err := ctx.openServices()
				if err != nil {
					return err
				}
				defer services.close()

				identity, err := services.identities.LocalByUsername(cmd.Context(), username)
				if err != nil {
					return err
				}
				if identity == nil {
					return fmt.Errorf("no local identity %q", username)
				}
				events, err := api.NewTimelineService(services.store).For(cmd.Context(), identity, limit)
				if err != nil {
					return err
				}
				resp = api.TimelineResponse{Identity: username, Events: events}
			}

			if jsonOut {
				return writeJSON(cmd, resp)
			}
			if len(resp.Events) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Timeline for @%s is empty\n", resp.Identity)
				return nil
			}

			rows := make([][]string, 0, len(resp.Events))
			for _, event := range resp.Events {
				rows = append(rows, []string{
					event.CreatedAt,
					event.Author,
					truncate(event.Content, 60),
				})
			}
			table := renderTable(
				[]string{"When", "Author", "Content"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum events to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the timeline as JSON")
	return cmd
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
