// Package env collects environment variables requested by a plan.
//
// Requested keys are merged into <root>/.env.local without touching existing
// values, and the same requests are queued in .af/pending-env-sync.json for a
// later, explicit provider sync. Nothing here talks to a provider.
package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/subosito/gotenv"

	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/storage"
	"github.com/entrhq/autoforge/pkg/types"
)

const (
	// LocalFile is the non-committed env file that receives requested keys.
	LocalFile = ".env.local"
	// PendingFile queues requests for provider sync, relative to the root.
	PendingFile = ".af/pending-env-sync.json"
)

var (
	needsQuotes = regexp.MustCompile(`[\s#'"\\]`)
	dqEscaper   = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
)

// Manager merges env requests for one project root.
type Manager struct {
	root   string
	logger *logging.Logger
}

// NewManager creates a manager for root.
func NewManager(root string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard("env")
	}
	return &Manager{root: root, logger: logger}
}

// Apply merges vars into .env.local, queues them for provider sync and
// reports what changed.
func (m *Manager) Apply(vars []types.EnvVarRequest) (*types.EnvMergeReport, error) {
	added, kept, err := m.MergeLocal(vars)
	if err != nil {
		return nil, err
	}
	if err := m.QueueProviderSync(vars); err != nil {
		return nil, err
	}

	report := &types.EnvMergeReport{
		Added:           added,
		Kept:            kept,
		VercelLinked:    IsVercelLinked(m.root),
		PendingSyncPath: filepath.Join(m.root, PendingFile),
	}
	m.logger.Infof("env merge: %d added, %d kept, vercel linked: %t", len(added), len(kept), report.VercelLinked)
	return report, nil
}

// MergeLocal appends keys missing from .env.local. Keys already present keep
// their value, whatever the request says. A request without a value reserves
// the key with an empty value.
func (m *Manager) MergeLocal(vars []types.EnvVarRequest) (added, kept []string, err error) {
	path := filepath.Join(m.root, LocalFile)

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to read %s: %w", LocalFile, err)
	}

	// gotenv.Parse skips malformed lines; they are preserved verbatim below.
	current := gotenv.Parse(strings.NewReader(string(existing)))

	var appended strings.Builder
	for _, v := range vars {
		key := strings.TrimSpace(v.Name)
		if key == "" {
			continue
		}
		if _, ok := current[key]; ok {
			kept = append(kept, key)
			continue
		}
		current[key] = v.Value
		appended.WriteString(formatLine(key, v.Value))
		added = append(added, key)
	}

	if len(added) == 0 {
		return added, kept, nil
	}

	body := string(existing)
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	body += appended.String()

	if err := storage.WriteFileAtomic(path, []byte(body), 0600); err != nil {
		return nil, nil, fmt.Errorf("failed to write %s: %w", LocalFile, err)
	}
	return added, kept, nil
}

func formatLine(key, value string) string {
	if needsQuotes.MatchString(value) {
		value = `"` + dqEscaper.Replace(value) + `"`
	}
	return key + "=" + value + "\n"
}

// IsVercelLinked reports whether root has been linked to the hosting platform.
func IsVercelLinked(root string) bool {
	_, err := os.Stat(filepath.Join(root, ".vercel", "project.json"))
	return err == nil
}
