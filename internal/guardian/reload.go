package guardian

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/nexus/internal/tools"
)

// Reloader holds the current Engine and rebuilds it when the policy file
// changes on disk.
type Reloader struct {
	path    string
	current atomic.Pointer[Engine]
}

// NewReloader loads the policy at path (or the default when path is empty
// or unusable) and builds the first engine.
func NewReloader(ctx context.Context, path string) (*Reloader, error) {
	r := &Reloader{path: path}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Engine returns the current engine.
func (r *Reloader) Engine() *Engine {
	return r.current.Load()
}

// Reload re-reads the policy file and swaps in a new engine.
func (r *Reloader) Reload(ctx context.Context) error {
	eng, err := NewEngine(ctx, LoadPolicy(r.path))
	if err != nil {
		return err
	}
	r.current.Store(eng)
	return nil
}

// Run watches the policy file's directory and reloads on writes to the file.
// Blocks until ctx is cancelled. Without a policy path it returns at once.
func (r *Reloader) Run(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watching %s: %w", r.path, err)
	}
	target := filepath.Clean(r.path)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					if err := r.Reload(context.WithoutCancel(ctx)); err != nil {
						log.Error().Err(err).Str("path", r.path).Msg("guardian_policy_reload_failed")
						return
					}
					log.Info().Str("path", r.path).Msg("guardian_policy_reloaded")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("guardian_policy_watcher_error")
		}
	}
}

// Review delegates to the current engine.
func (r *Reloader) Review(ctx context.Context, tool string, args map[string]interface{}, riskLevel string, reg *tools.Registry) Verdict {
	return r.Engine().Review(ctx, tool, args, riskLevel, reg)
}
