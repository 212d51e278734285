// Package main provides af, the autoforge command line.
//
// af applies planner action plans to a source tree, runs the phased
// plan-execute-fix loop, and manages the on-disk task queue and its daemon.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

// cli carries per-invocation settings shared by every command.
type cli struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), stdout: stdout, stderr: stderr}
	c.v.SetEnvPrefix("AF")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:     "af",
		Short:   "autoforge: apply planner actions to a source tree",
		Version: version,
		Long: `af executes structured action plans against a local repository.

Plans are JSON: {"actions":[...], "notes":"..."}. Actions patch files, run
allow-listed shell commands, request environment variables, read/write/edit
files inside the project root, scan the repository, and run build checks.
Project state lives in .af/ at the repository root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringP("root", "r", "", "project root (default: nearest directory containing .git)")
	pf.Bool("json", false, "output JSON")
	pf.String("verbosity", "", "console log level: quiet, normal, verbose, debug")
	pf.String("model", "", "planner model (default from .af/config.yml)")
	pf.String("base-url", "", "OpenAI-compatible API base URL")
	pf.String("api-key", "", "planner API key (default $OPENAI_API_KEY)")
	for _, name := range []string{"root", "json", "verbosity", "model", "base-url", "api-key"} {
		_ = c.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		c.initCmd(),
		c.scanCmd(),
		c.execCmd(),
		c.runCmd(),
		c.checkCmd(),
		c.queueCmd(),
		c.daemonCmd(),
		c.envCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
