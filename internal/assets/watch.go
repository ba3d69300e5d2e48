package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"medqa/internal/common/fsutil"
)

// WaitForFiles blocks until every path exists as a regular file or ctx is
// done. Parent directories must exist. Files already present return
// immediately without creating a watcher.
func WaitForFiles(ctx context.Context, log zerolog.Logger, paths ...string) error {
	pending := map[string]struct{}{}
	for _, p := range paths {
		if p == "" || fsutil.FileExists(p) {
			continue
		}
		pending[filepath.Clean(p)] = struct{}{}
	}
	if len(pending) == 0 {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("asset watcher: %w", err)
	}
	defer w.Close()

	dirs := map[string]struct{}{}
	for p := range pending {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	// Re-check after the watch is armed so a file created in between is not missed.
	recheck := func() {
		for p := range pending {
			if fsutil.FileExists(p) {
				log.Info().Str("event", "asset_ready").Str("path", p).Msg("assets")
				delete(pending, p)
			}
		}
	}
	recheck()
	for _, p := range sortedKeys(pending) {
		log.Info().Str("event", "asset_wait").Str("path", p).Msg("assets")
	}

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for assets %v: %w", sortedKeys(pending), ctx.Err())
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("asset watcher closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			recheck()
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("asset watcher closed")
			}
			log.Warn().Err(err).Str("event", "watch_error").Msg("assets")
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
