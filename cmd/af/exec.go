package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/phase"
)

// errActionsFailed marks a batch that ran but did not succeed.
var errActionsFailed = errors.New("actions failed")

func (c *cli) execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <plan.json|->",
		Short: "Execute a JSON action plan against the project",
		Long: `Execute reads a plan ({"actions":[...]} or a bare action array) from a
file, or from stdin when the argument is "-". Surrounding prose and markdown
fences are tolerated. Actions run in order and stop at the first failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPlanSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			plan, err := phase.ParsePlan(raw)
			if err != nil {
				return err
			}

			s, err := c.open("exec")
			if err != nil {
				return err
			}
			defer s.close()

			ex, err := s.executor()
			if err != nil {
				return err
			}
			if plan.Notes != "" {
				s.console.Info("%s", plan.Notes)
			}
			res := ex.Execute(cmd.Context(), plan.Actions)

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
			s.console.OK("Executed %d action(s)", len(plan.Actions))
			return nil
		},
	}
}

func readPlanSource(stdin io.Reader, arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read plan: %w", err)
	}
	return string(data), nil
}
