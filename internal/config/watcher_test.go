package config

import (
	"context"
	"os"
	"testing"

	"wadispatch/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watcherLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestWatcherStartLoadsInitialConfig(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)
	w := NewWatcher(path, watcherLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))

	cfg := w.Config()
	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:3000", cfg.Provider.APIBaseURL)
}

func TestWatcherStartFailsOnInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, `{"provider": {}}`)
	w := NewWatcher(path, watcherLogger())

	err := w.Start(context.Background())
	assert.Error(t, err)
}

func TestWatcherReloadInvokesCallbacks(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)
	w := NewWatcher(path, watcherLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	var gotLevel string
	w.OnReload(func(cfg *models.Config) { gotLevel = cfg.LogLevel })

	updated := `{
		"provider": {"api_base_url": "http://localhost:3000", "api_key": "test-key"},
		"database": {"path": "/tmp/wadispatch-test.db"},
		"log_level": "warn"
	}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0600))
	w.reload()

	assert.Equal(t, "warn", gotLevel)
	assert.Equal(t, "warn", w.Config().LogLevel)
}

func TestWatcherReloadKeepsPreviousOnError(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)
	w := NewWatcher(path, watcherLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	called := false
	w.OnReload(func(cfg *models.Config) { called = true })

	require.NoError(t, os.WriteFile(path, []byte(`{"bad json`), 0600))
	w.reload()

	assert.False(t, called)
	require.NotNil(t, w.Config())
	assert.Equal(t, "http://localhost:3000", w.Config().Provider.APIBaseURL)
}
