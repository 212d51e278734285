// Package scanner walks a source tree with a bounded worker pool, classifies
// files and keeps a change-detection cache in <root>/.af/cache.json.
//
// In deep mode every file gets a SHA-1 fingerprint, reused from the previous
// cache whenever size and mtime are unchanged. A scan that is cancelled or
// hits a directory error writes no cache.
package scanner

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/autoforge/pkg/logging"
	"github.com/entrhq/autoforge/pkg/security/workspace"
	"github.com/entrhq/autoforge/pkg/types"
)

const (
	sniffSize        = 1024
	progressInterval = 250 * time.Millisecond
)

// Hasher fingerprints one file.
type Hasher func(absPath string) (string, error)

// Options configures a scan. Use DefaultOptions and override fields.
type Options struct {
	Root          string
	Mode          types.ScanMode
	Concurrency   int // clamped to [2, NumCPU]; zero means NumCPU
	RespectIgnore bool
	WriteCache    bool
	ExtraIgnore   []string  // extra gitignore-style patterns
	Progress      io.Writer // nil disables the progress line
	Hasher        Hasher    // nil means streamed SHA-1
	Logger        *logging.Logger
}

// DefaultOptions returns a fast, ignore-respecting, cache-writing scan of root.
func DefaultOptions(root string) Options {
	return Options{
		Root:          root,
		Mode:          types.ScanFast,
		RespectIgnore: true,
		WriteCache:    true,
	}
}

// PoolSize clamps a requested concurrency to [2, NumCPU].
func PoolSize(requested int) int {
	n := runtime.NumCPU()
	if requested <= 0 || requested > n {
		requested = n
	}
	if requested < 2 {
		requested = 2
	}
	return requested
}

type scan struct {
	opts   Options
	root   string
	ignore *workspace.IgnoreMatcher
	prev   *Cache
	pool   *pool
	cancel context.CancelCauseFunc
	logger *logging.Logger

	files atomic.Int64
	dirs  atomic.Int64
	bytes atomic.Int64

	mu      sync.Mutex
	results []types.FileInfo
	next    *Cache
}

// Scan walks opts.Root and returns every visited file sorted by path.
func Scan(ctx context.Context, opts Options) (*types.ScanResult, error) {
	if opts.Root == "" {
		opts.Root = "."
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root: %w", err)
	}
	if opts.Mode == "" {
		opts.Mode = types.ScanFast
	}
	if opts.Mode != types.ScanFast && opts.Mode != types.ScanDeep {
		return nil, fmt.Errorf("invalid scan mode: %s (must be 'fast' or 'deep')", opts.Mode)
	}
	if opts.Hasher == nil {
		opts.Hasher = SHA1File
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard("scanner")
	}

	s := &scan{
		opts:   opts,
		root:   root,
		logger: logger,
		next:   newCache(),
	}
	if opts.RespectIgnore {
		s.ignore, err = workspace.NewIgnoreMatcher(root, opts.ExtraIgnore...)
		if err != nil {
			return nil, err
		}
	}

	cachePath := filepath.Join(root, CacheFileName)
	s.prev = LoadCache(cachePath)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scanCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.cancel = cancel
	s.pool = newPool(scanCtx, PoolSize(opts.Concurrency))

	stopProgress := s.startProgress()
	s.pool.submit(func() { s.visitDir(scanCtx, root, "") })
	s.pool.wait()
	stopProgress()

	if err := ctx.Err(); err != nil {
		logger.Infof("scan of %s cancelled", root)
		return nil, err
	}
	if cause := context.Cause(scanCtx); cause != nil {
		return nil, cause
	}

	sort.Slice(s.results, func(i, j int) bool { return s.results[i].Path < s.results[j].Path })
	result := &types.ScanResult{
		Files:     s.results,
		Stats:     types.ScanStats{Files: int(s.files.Load()), Dirs: int(s.dirs.Load()), Bytes: s.bytes.Load()},
		CachePath: cachePath,
		Mode:      opts.Mode,
	}
	if result.Files == nil {
		result.Files = []types.FileInfo{}
	}

	if opts.WriteCache {
		if err := s.next.Save(cachePath); err != nil {
			return nil, fmt.Errorf("failed to write scan cache: %w", err)
		}
	}

	logger.Infof("scanned %s (%s): %d files, %d dirs, %d bytes", root, opts.Mode, result.Stats.Files, result.Stats.Dirs, result.Stats.Bytes)
	return result, nil
}

// visitDir lists one directory and submits a unit per child. A read error
// aborts the whole scan; the first one wins.
func (s *scan) visitDir(ctx context.Context, abs, rel string) {
	if ctx.Err() != nil {
		return
	}
	s.dirs.Add(1)

	entries, err := os.ReadDir(abs)
	if err != nil {
		s.cancel(fmt.Errorf("failed to read directory %s: %w", abs, err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		childAbs := filepath.Join(abs, entry.Name())
		childRel := entry.Name()
		if rel != "" {
			childRel = path.Join(rel, entry.Name())
		}

		if s.ignore != nil && s.ignore.ShouldIgnore(childRel, entry.IsDir()) {
			continue
		}

		switch {
		case entry.IsDir():
			s.pool.submit(func() { s.visitDir(ctx, childAbs, childRel) })
		case entry.Type().IsRegular():
			s.pool.submit(func() { s.visitFile(ctx, childAbs, childRel) })
		}
	}
}

// visitFile records one file. Errors are logged and the file skipped.
func (s *scan) visitFile(ctx context.Context, abs, rel string) {
	if ctx.Err() != nil {
		return
	}

	st, err := os.Stat(abs)
	if err != nil {
		s.logger.Debugf("skipping %s: %v", rel, err)
		return
	}
	info := types.FileInfo{
		Path:     rel,
		Size:     st.Size(),
		MtimeMs:  float64(st.ModTime().UnixNano()) / 1e6,
		IsBinary: looksBinary(abs),
	}

	if s.opts.Mode == types.ScanDeep {
		if sum, ok := s.prev.fingerprint(rel, info.Size, info.MtimeMs); ok {
			info.SHA1 = sum
		} else {
			sum, err := s.opts.Hasher(abs)
			if err != nil {
				s.logger.Debugf("skipping %s: %v", rel, err)
				return
			}
			info.SHA1 = sum
		}
	}

	s.files.Add(1)
	s.bytes.Add(info.Size)

	s.mu.Lock()
	s.results = append(s.results, info)
	s.next.Entries[rel] = CacheEntry{Size: info.Size, MtimeMs: info.MtimeMs, SHA1: info.SHA1}
	s.mu.Unlock()
}

func (s *scan) startProgress() (stop func()) {
	if s.opts.Progress == nil {
		return func() {}
	}

	started := time.Now()
	ticker := time.NewTicker(progressInterval)
	done := make(chan struct{})
	finished := make(chan struct{})
	ticked := false

	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ticked = true
				secs := time.Since(started).Seconds()
				if secs < 1 {
					secs = 1
				}
				files := s.files.Load()
				fmt.Fprintf(s.opts.Progress, "\r⏳ Scanning (%s) — files: %d dirs: %d ~%d/s",
					s.opts.Mode, files, s.dirs.Load(), int64(float64(files)/secs))
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
		<-finished
		if ticked {
			fmt.Fprintln(s.opts.Progress)
		}
	}
}

// looksBinary reports whether the first KiB of the file holds a NUL byte.
// Unreadable files count as text.
func looksBinary(abs string) bool {
	f, err := os.Open(abs)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, _ := io.ReadFull(f, buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// SHA1File streams a file through SHA-1 and returns the hex digest.
func SHA1File(abs string) (string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
