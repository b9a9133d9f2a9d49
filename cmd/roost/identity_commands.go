package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIdentityCommand(ctx *commandContext) *cobra.Command {
	identityCmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage identities on this instance",
	}

	identityCmd.AddCommand(newIdentityCreateCommand(ctx))
	identityCmd.AddCommand(newIdentityListCommand(ctx))
	return identityCmd
}

func newIdentityCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create <username>",
		Short: "Create a local identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.openServices()
			if err != nil {
				return err
			}
			defer services.close()

			identity, err := services.identities.CreateLocal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created @%s@%s\n", identity.Username, identity.Domain)
			fmt.Fprintf(out, "Actor URI: %s\n", identity.ActorURI)
			return nil
		},
	}
}

func newIdentityListCommand(ctx *commandContext) *cobra.Command {
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := ctx.openServices()
			if err != nil {
				return err
			}
			defer services.close()

			identities, err := services.store.ListIdentities(cmd.Context(), localOnly)
			if err != nil {
				return err
			}
			if len(identities) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No identities yet")
				return nil
			}

			rows := make([][]string, 0, len(identities))
			for _, identity := range identities {
				rows = append(rows, []string{
					fmt.Sprintf("%d", identity.ID),
					identity.Username,
					identity.Domain,
					yesNo(identity.Local),
					identity.State,
				})
			}
			table := renderTable(
				[]string{"ID", "Username", "Domain", "Local", "State"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local", false, "Only list local identities")
	return cmd
}
