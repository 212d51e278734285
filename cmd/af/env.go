package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/env"
	"github.com/entrhq/autoforge/pkg/types"
)

func (c *cli) envCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect environment variables queued for provider sync",
	}
	cmd.AddCommand(c.envStatusCmd(), c.envClearCmd())
	return cmd
}

func (c *cli) envStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-status",
		Short: "List variables waiting to be synced to providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := c.resolveRoot()
			if err != nil {
				return err
			}
			pending, err := env.LoadPending(root)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(pending)
			}
			if len(pending.Variables) == 0 {
				fmt.Fprintln(c.stdout, "No pending environment syncs.")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(c.stdout)
			tw.AppendHeader(table.Row{"Name", "Providers", "Scopes", "Description"})
			for _, v := range pending.Variables {
				tw.AppendRow(table.Row{v.Name, joinProviders(v.RequiredProviders), joinScopes(v.Scopes), v.Description})
			}
			tw.Render()
			fmt.Fprintf(c.stdout, "Vercel linked: %t\n", env.IsVercelLinked(root))
			return nil
		},
	}
}

func (c *cli) envClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [names...]",
		Short: "Mark variables as synced (all when no names are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := c.resolveRoot()
			if err != nil {
				return err
			}
			n, err := env.ClearPending(root, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "cleared %d variable(s)\n", n)
			return nil
		},
	}
}

func joinProviders(ps []types.Provider) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return strings.Join(out, ", ")
}

func joinScopes(ss []types.Scope) string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}
