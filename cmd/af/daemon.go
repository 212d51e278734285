package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/queue"
)

func (c *cli) daemonCmd() *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run queued tasks one at a time until interrupted",
		Long: `The daemon claims the oldest queued task, runs it, and records done,
failed or paused-awaiting-human on the task. Run exactly one daemon per
project. An interrupted task is put back in the queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open("daemon")
			if err != nil {
				return err
			}
			defer s.close()

			ex, err := s.executor()
			if err != nil {
				return err
			}
			d := &queue.Daemon{
				Store: queue.NewStore(s.root),
				Dispatcher: &taskDispatcher{
					root:       s.root,
					cfg:        s.cfg,
					executor:   ex,
					newPlanner: s.planner,
					logger:     s.logger,
					console:    s.console,
				},
				Interval: s.cfg.Daemon.Interval,
				Logger:   s.logger,
				Console:  s.console,
			}
			if cmd.Flags().Changed("interval") {
				d.Interval = interval
			}

			if once {
				ran, err := d.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if !ran {
					s.console.Info("Queue is empty")
				}
				return nil
			}

			s.console.Step("Daemon watching %s", d.Store.Path())
			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", queue.DefaultInterval, "idle poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "run at most one task and exit")
	return cmd
}
