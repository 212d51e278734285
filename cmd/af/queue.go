package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/entrhq/autoforge/pkg/phase"
	"github.com/entrhq/autoforge/pkg/queue"
	"github.com/entrhq/autoforge/pkg/types"
)

func (c *cli) queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage queued tasks in .af/state/state.json",
	}
	cmd.AddCommand(
		c.queueAddCmd(),
		c.queueListCmd(),
		c.queueResumeCmd(),
		c.queueRemoveCmd(),
		c.queuePruneCmd(),
	)
	return cmd
}

func (c *cli) store() (*queue.Store, error) {
	root, err := c.resolveRoot()
	if err != nil {
		return nil, err
	}
	return queue.NewStore(root), nil
}

func (c *cli) queueAddCmd() *cobra.Command {
	var (
		goal     string
		planFile string
		paths    []string
		meta     []string
	)

	cmd := &cobra.Command{
		Use:   "add <generate|edit|check|deploy> [goal...]",
		Short: "Queue a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := make(map[string]any)
			for _, kv := range meta {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid --meta %q (want key=value)", kv)
				}
				m[k] = v
			}
			if goal == "" && len(args) > 1 {
				goal = strings.Join(args[1:], " ")
			}
			if goal != "" {
				m["goal"] = goal
			}
			if planFile != "" {
				raw, err := readPlanSource(cmd.InOrStdin(), planFile)
				if err != nil {
					return err
				}
				if _, err := phase.ParsePlan(raw); err != nil {
					return err
				}
				m["plan"] = raw
			}
			if len(paths) > 0 {
				m["paths"] = paths
			}

			store, err := c.store()
			if err != nil {
				return err
			}
			id, err := store.Enqueue(types.TaskType(args[0]), m)
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(map[string]string{"id": id})
			}
			fmt.Fprintln(c.stdout, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&goal, "goal", "", "goal for generate/edit tasks")
	cmd.Flags().StringVar(&planFile, "plan", "", "plan file (or -) executed instead of planning")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "check task directory (repeatable)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "extra meta key=value (repeatable)")
	return cmd
}

func (c *cli) queueListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			tasks, err := store.List()
			if err != nil {
				return err
			}
			if status != "" {
				filtered := tasks[:0]
				for _, t := range tasks {
					if string(t.Status) == status {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}

			if c.jsonOutput() {
				return c.printJSON(tasks)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(c.stdout, "No tasks.")
				return nil
			}
			printTasks(c.stdout, tasks)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only show tasks with this status")
	return cmd
}

func printTasks(w io.Writer, tasks []types.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Type", "Status", "Created", "Updated", "Note"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{
			t.ID, t.Type, t.Status,
			t.CreatedAt.Local().Format(time.DateTime),
			t.UpdatedAt.Local().Format(time.DateTime),
			taskNote(t),
		})
	}
	tw.Render()
}

// taskNote is the most useful single line of meta for the list view.
func taskNote(t types.Task) string {
	note := ""
	switch {
	case t.MetaString("error") != "":
		note = t.MetaString("error")
	case t.MetaString("instruction") != "":
		note = t.MetaString("instruction")
	case t.MetaString("goal") != "":
		note = t.MetaString("goal")
	}
	note, _, _ = strings.Cut(note, "\n")
	if len(note) > 60 {
		note = note[:57] + "..."
	}
	return note
}

func (c *cli) queueResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Re-queue a paused or failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			task, err := store.Resume(args[0])
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(task)
			}
			fmt.Fprintf(c.stdout, "%s is %s\n", task.ID, task.Status)
			return nil
		},
	}
}

func (c *cli) queueRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a task that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "removed %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) queuePruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete every done task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store()
			if err != nil {
				return err
			}
			n, err := store.Prune()
			if err != nil {
				return err
			}
			if c.jsonOutput() {
				return c.printJSON(map[string]int{"removed": n})
			}
			fmt.Fprintf(c.stdout, "removed %d task(s)\n", n)
			return nil
		},
	}
}
