package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/slighter12/dataset-mcp-go/logger"
)

// FileSnapshot captures one definition file's identity for change detection.
type FileSnapshot struct {
	Path          string
	Size          int64
	ContentSHA256 string
}

// Snapshot returns the identities of all definition files in dir, keyed by
// path.
func Snapshot(dir string) (map[string]FileSnapshot, error) {
	files, err := CandidateFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]FileSnapshot, len(files))
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		sum, err := fileSHA256(path)
		if err != nil {
			continue
		}
		out[path] = FileSnapshot{Path: path, Size: info.Size(), ContentSHA256: sum}
	}
	return out, nil
}

// DiffSnapshots lists the paths added, removed or changed between two
// snapshots, sorted.
func DiffSnapshots(before, after map[string]FileSnapshot) []string {
	var changed []string
	for path, prev := range before {
		next, ok := after[path]
		if !ok || next != prev {
			changed = append(changed, path)
		}
	}
	for path := range after {
		if _, ok := before[path]; !ok {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Watcher reports edits to the discovery directory after the registry was
// frozen. The registry is never reloaded; a restart applies the change.
type Watcher struct {
	dir      string
	debounce time.Duration
	baseline map[string]FileSnapshot
	notify   func(changed []string)
}

// NewWatcher snapshots dir as the baseline. notify is called with the
// changed paths after each settled burst of events; nil logs a warning.
func NewWatcher(dir string, notify func(changed []string)) (*Watcher, error) {
	baseline, err := Snapshot(dir)
	if err != nil {
		return nil, err
	}
	if notify == nil {
		notify = func(changed []string) {
			logger.Warn("Tool definitions changed on disk; restart to apply", "dir", dir, "files", changed)
		}
	}
	return &Watcher{
		dir:      dir,
		debounce: 250 * time.Millisecond,
		baseline: baseline,
		notify:   notify,
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Clean(expandUser(w.dir))); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Debug("Watching tool definitions", "dir", w.dir)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		current = maps.Clone(w.baseline)
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if _, candidate := ModuleName(filepath.Base(event.Name)); !candidate {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Tool definition watcher error", "dir", w.dir, "error", err)
		case <-timerC:
			timerC = nil
			next, err := Snapshot(w.dir)
			if err != nil {
				logger.Warn("Tool definition directory unavailable", "dir", w.dir, "error", err)
				continue
			}
			if changed := DiffSnapshots(current, next); len(changed) > 0 {
				current = next
				w.notify(changed)
			}
		}
	}
}
