package config

import (
	"context"
	"os"
	"sync"
	"time"

	"wadispatch/internal/models"

	"github.com/sirupsen/logrus"
)

const watchInterval = 5 * time.Second

// Watcher polls the configuration file and reloads it when the
// modification time changes. Callbacks receive the freshly validated
// config; a file that fails validation is logged and skipped so a bad
// edit never takes down running jobs.
type Watcher struct {
	configPath string
	logger     *logrus.Logger

	mu        sync.RWMutex
	config    *models.Config
	callbacks []func(*models.Config)
}

// NewWatcher creates a configuration watcher
func NewWatcher(configPath string, logger *logrus.Logger) *Watcher {
	return &Watcher{
		configPath: configPath,
		logger:     logger,
	}
}

// OnReload registers a callback invoked after each successful reload.
// Register callbacks before calling Start.
func (w *Watcher) OnReload(fn func(*models.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Config returns the most recently loaded configuration
func (w *Watcher) Config() *models.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start loads the initial configuration and begins polling until the
// context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.config = cfg
	w.mu.Unlock()

	stat, err := os.Stat(w.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	w.logger.WithField("path", w.configPath).Info("Configuration watcher started")

	go func() {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Configuration watcher stopping")
				return
			case <-ticker.C:
				stat, err := os.Stat(w.configPath)
				if err != nil {
					w.logger.WithError(err).Warn("Failed to stat config file")
					continue
				}
				if !stat.ModTime().After(lastModTime) {
					continue
				}
				lastModTime = stat.ModTime()
				w.reload()
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload config, keeping previous configuration")
		return
	}

	w.mu.Lock()
	w.config = cfg
	callbacks := make([]func(*models.Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded")
	for _, fn := range callbacks {
		fn(cfg)
	}
}
