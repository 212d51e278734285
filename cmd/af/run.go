package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/phase"
)

func (c *cli) runCmd() *cobra.Command {
	var (
		maxRetries int
		checkPaths []string
		specFile   string
		commit     bool
	)

	cmd := &cobra.Command{
		Use:   "run <goal...>",
		Short: "Plan, execute and fix until checks pass",
		Long: `Run asks the planner for actions toward the goal, executes them with a
trailing check, and sends failures back for the smallest fix until the check
passes or the retry budget is spent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open("phase")
			if err != nil {
				return err
			}
			defer s.close()

			planner, err := s.planner()
			if err != nil {
				return err
			}
			ex, err := s.executor()
			if err != nil {
				return err
			}

			opts := phase.Options{
				MaxRetries: s.cfg.MaxRetries(),
				CheckPaths: s.cfg.Planner.CheckPaths,
				SpecFile:   s.cfg.Planner.SpecFile,
			}
			if cmd.Flags().Changed("max-retries") {
				opts.MaxRetries = max(maxRetries, 1)
			}
			if len(checkPaths) > 0 {
				opts.CheckPaths = checkPaths
			}
			if specFile != "" {
				opts.SpecFile = specFile
			}

			goal := strings.Join(args, " ")
			runner := phase.NewRunner(s.root, planner, ex, s.logger, s.console)
			out, err := runner.Run(cmd.Context(), goal, opts)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				if err := c.printJSON(out); err != nil {
					return err
				}
			}
			if !out.OK {
				return fmt.Errorf("goal not reached after %d attempt(s)", out.Attempts)
			}
			if commit || s.cfg.Git.AutoCommit {
				return commitWork(cmd.Context(), s.root, planner, goal, s.console)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "execution rounds (default planner.maxRetries)")
	cmd.Flags().StringSliceVar(&checkPaths, "check-path", nil, "directory for the trailing check (repeatable)")
	cmd.Flags().StringVar(&specFile, "spec-file", "", "product spec shown to the planner (default planner.specFile)")
	cmd.Flags().BoolVar(&commit, "commit", false, "commit the changes once checks pass (default git.autoCommit)")
	return cmd
}
