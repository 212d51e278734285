package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/autoforge/pkg/config"
	"github.com/entrhq/autoforge/pkg/executor"
	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/phase"
	"github.com/entrhq/autoforge/pkg/security/workspace"
	"github.com/entrhq/autoforge/pkg/ui"
)

// session is an opened project: root, config, logger and console.
type session struct {
	root    string
	cfg     *config.Config
	logger  *logging.Logger
	console *ui.Console
	c       *cli
}

// resolveRoot returns --root, or the nearest enclosing git repository.
func (c *cli) resolveRoot() (string, error) {
	if r := c.v.GetString("root"); r != "" {
		abs, err := filepath.Abs(r)
		if err != nil {
			return "", fmt.Errorf("failed to resolve root: %w", err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	root, err := workspace.FindRoot(wd)
	if errors.Is(err, workspace.ErrNoRoot) {
		return "", fmt.Errorf("%w; run `af init` first", err)
	}
	return root, err
}

// open loads the project config and sets up logging under .af/logs.
func (c *cli) open(component string) (*session, error) {
	root, err := c.resolveRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	verbosity := c.v.GetString("verbosity")
	if verbosity == "" {
		verbosity = cfg.Logging.Verbosity
	}
	level, err := logging.ParseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}
	logging.SetConsoleLevel(level)
	logging.SetLogDirectory(filepath.Join(root, config.Dir, "logs"))

	console := ui.NewConsole(c.stderr)
	logger, err := logging.NewLogger(component)
	if err != nil {
		console.Warn("Logging to stderr only: %v", err)
	}
	logger.Debugf("opened %s (config %s)", root, config.Path(root))

	return &session{root: root, cfg: cfg, logger: logger, console: console, c: c}, nil
}

func (s *session) close() {
	_ = s.logger.Close()
}

// executor builds an executor whose subprocesses share the CLI's stdio.
// With --json their stdout goes to stderr so stdout stays parseable.
func (s *session) executor() (*executor.Executor, error) {
	stdout := s.c.stdout
	if s.c.jsonOutput() {
		stdout = s.c.stderr
	}
	return executor.New(s.root, s.cfg,
		executor.WithLogger(s.logger.With("subsystem", "executor")),
		executor.WithConsole(s.console),
		executor.WithOutput(stdout, s.c.stderr),
		executor.WithScanProgress(s.c.stderr),
	)
}

func (c *cli) jsonOutput() bool {
	return c.v.GetBool("json")
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// planner builds the LLM planner. Flags and AF_ env vars override config.
func (s *session) planner() (phase.Planner, error) {
	provider, err := s.cfg.BuildProvider(
		s.c.v.GetString("model"),
		s.c.v.GetString("base-url"),
		s.c.v.GetString("api-key"),
	)
	if err != nil {
		return nil, err
	}
	s.logger.Debugf("planner model %s", provider.GetModel())
	return phase.ProviderPlanner{Provider: provider}, nil
}
