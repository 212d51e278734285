package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/autoforge/pkg/storage"
	"github.com/entrhq/autoforge/pkg/types"
)

// PendingSync is the on-disk provider sync queue.
type PendingSync struct {
	Variables []types.EnvVarRequest `json:"variables"`
}

// LoadPending reads the queue. A missing file is an empty queue.
func LoadPending(root string) (*PendingSync, error) {
	var p PendingSync
	err := storage.ReadJSON(filepath.Join(root, PendingFile), &p)
	if errors.Is(err, os.ErrNotExist) {
		return &PendingSync{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// QueueProviderSync unions vars into the pending queue by name. Existing
// entries keep their position; a corrupt queue file is replaced.
func (m *Manager) QueueProviderSync(vars []types.EnvVarRequest) error {
	pending, err := LoadPending(m.root)
	if err != nil {
		m.logger.Warnf("discarding unreadable %s: %v", PendingFile, err)
		pending = &PendingSync{}
	}

	index := make(map[string]int, len(pending.Variables))
	for i, v := range pending.Variables {
		index[v.Name] = i
	}

	for _, v := range vars {
		if i, ok := index[v.Name]; ok {
			pending.Variables[i] = pending.Variables[i].Merge(v)
			continue
		}
		index[v.Name] = len(pending.Variables)
		pending.Variables = append(pending.Variables, v)
	}

	if err := storage.WriteJSON(filepath.Join(m.root, PendingFile), pending); err != nil {
		return fmt.Errorf("failed to queue provider sync: %w", err)
	}
	return nil
}

// ClearPending removes the named variables from the queue, or every variable
// when names is empty, once they have been synced by hand. It reports how
// many entries went.
func ClearPending(root string, names []string) (int, error) {
	pending, err := LoadPending(root)
	if err != nil {
		return 0, err
	}

	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	kept := pending.Variables[:0]
	for _, v := range pending.Variables {
		if len(names) > 0 && !drop[v.Name] {
			kept = append(kept, v)
		}
	}
	removed := len(pending.Variables) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	pending.Variables = kept
	if err := storage.WriteJSON(filepath.Join(root, PendingFile), pending); err != nil {
		return 0, fmt.Errorf("failed to update pending sync: %w", err)
	}
	return removed, nil
}
