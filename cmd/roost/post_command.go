package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPostCommand(ctx *commandContext) *cobra.Command {
	postCmd := &cobra.Command{
		Use:   "post",
		Short: "Create and inspect posts",
	}

	postCmd.AddCommand(newPostCreateCommand(ctx))
	return postCmd
}

func newPostCreateCommand(ctx *commandContext) *cobra.Command {
	var author string
	var summary string

	cmd := &cobra.Command{
		Use:   "create [content]",
		Short: "Publish a post from a local identity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(author) == "" {
				return fmt.Errorf("--author is required")
			}

			services, err := ctx.openServices()
			if err != nil {
				return err
			}
			defer services.close()

			identity, err := services.identities.LocalByUsername(cmd.Context(), author)
			if err != nil {
				return err
			}
			if identity == nil {
				return fmt.Errorf("no local identity %q (create one with 'roost identity create')", author)
			}

			content := strings.Join(args, " ")
			post, err := services.activities.CreateLocal(cmd.Context(), identity, content, summary)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created post %d as @%s\n", post.ID, identity.Username)
			fmt.Fprintf(out, "Object URI: %s\n", post.ObjectURI)
			fmt.Fprintln(out, "The daemon will fan it out to followers on its next pass")
			return nil
		},
	}

	cmd.Flags().StringVarP(&author, "author", "a", "", "Local username publishing the post")
	cmd.Flags().StringVarP(&summary, "summary", "s", "", "Content warning summary; marks the post sensitive")
	return cmd
}
