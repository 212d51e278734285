package main

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/types"
)

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [paths...]",
		Short: "Run the detected build/typecheck in each path (default: root)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open("check")
			if err != nil {
				return err
			}
			defer s.close()

			ex, err := s.executor()
			if err != nil {
				return err
			}
			res := ex.Execute(cmd.Context(), []types.Action{&types.CheckAction{Paths: args}})
			if c.jsonOutput() {
				if err := c.printJSON(res); err != nil {
					return err
				}
			}
			if !res.OK {
				if !c.jsonOutput() {
					s.console.Err("%s", res.ErrorLog)
				}
				return errActionsFailed
			}
			s.console.OK("Checks passed")
			return nil
		},
	}
}
