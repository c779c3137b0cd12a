package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 250 * time.Millisecond

// Registry owns the process-wide pipeline. The current pipeline is swapped
// atomically, so readers never see a half-loaded pair of artifacts.
type Registry struct {
	paths   ArtifactPaths
	current atomic.Pointer[Pipeline]
	mu      sync.Mutex
	logger  *zap.Logger
	load    func(ArtifactPaths) (*Pipeline, error)
}

func NewRegistry(paths ArtifactPaths, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		paths:  paths,
		logger: logger,
		load:   LoadPipeline,
	}
}

// Load reads the artifacts and replaces the current pipeline. On failure the
// previous pipeline, if any, stays in service.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) loadLocked() error {
	p, err := r.load(r.paths)
	if err != nil {
		return err
	}
	r.current.Store(p)
	r.logger.Info("pipeline loaded",
		zap.String("preprocessor", r.paths.PreprocessorPath),
		zap.String("model_type", r.paths.ModelType),
		zap.String("model", r.paths.ModelPath),
		zap.Int("num_features", p.Model.NumFeatures()),
	)
	return nil
}

// Get returns the current pipeline, loading it first if nothing has been
// loaded yet. Concurrent first calls perform a single load; a failed load is
// retried by the next call.
func (r *Registry) Get() (*Pipeline, error) {
	if p := r.current.Load(); p != nil {
		return p, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.current.Load(); p != nil {
		return p, nil
	}
	if err := r.loadLocked(); err != nil {
		return nil, err
	}
	return r.current.Load(), nil
}

// Current returns the loaded pipeline without triggering a load.
func (r *Registry) Current() *Pipeline {
	return r.current.Load()
}

// Watch reloads the pipeline whenever either artifact file is written,
// created or renamed into place, until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	targets := map[string]bool{
		filepath.Clean(r.paths.PreprocessorPath): true,
		filepath.Clean(r.paths.ModelPath):        true,
	}
	dirs := make(map[string]bool)
	for path := range targets {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !targets[filepath.Clean(event.Name)] {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				// editors and deploy tools write in bursts
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := r.Load(); err != nil {
					r.logger.Error("pipeline reload failed, keeping previous artifacts", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("artifact watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
