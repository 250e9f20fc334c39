package configstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ecdemo/backend/internal/application/bulkuser"
	"github.com/ecdemo/backend/internal/domain/loadtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := New(path, zap.NewNop())
	require.NoError(t, err)
	return store, path
}

func TestNew_CreatesDefaultsWhenMissing(t *testing.T) {
	store, path := newTestStore(t)

	assert.FileExists(t, path)
	assert.NotEmpty(t, store.Endpoints())
	assert.Equal(t, loadtest.DefaultSafetyLimits(), store.SafetyLimits())
}

func TestNew_ReloadsPersistedState(t *testing.T) {
	store, path := newTestStore(t)

	cfg := bulkuser.DefaultCreationConfig()
	cfg.UsernamePattern = "qa_{id}"
	require.NoError(t, store.SaveTemplate("qa", cfg))

	reloaded, err := New(path, zap.NewNop())
	require.NoError(t, err)

	got, err := reloaded.Template("qa")
	require.NoError(t, err)
	assert.Equal(t, "qa_{id}", got.UsernamePattern)
}

func TestTemplate_FallsBackToBuiltins(t *testing.T) {
	store, _ := newTestStore(t)

	cfg, err := store.Template("load_test")
	require.NoError(t, err)
	assert.Equal(t, "loadtest_{id}", cfg.UsernamePattern)

	_, err = store.Template("missing")
	assert.Error(t, err)
}

func TestSaveTemplate_Rules(t *testing.T) {
	store, _ := newTestStore(t)

	// Built-in names cannot be shadowed.
	err := store.SaveTemplate("default", bulkuser.DefaultCreationConfig())
	assert.Error(t, err)

	// Invalid configs are rejected.
	bad := bulkuser.DefaultCreationConfig()
	bad.UsernamePattern = "no-placeholder"
	err = store.SaveTemplate("bad", bad)
	assert.Error(t, err)

	require.NoError(t, store.SaveTemplate("good", bulkuser.DefaultCreationConfig()))
	assert.Contains(t, store.TemplateNames(), "good")

	require.NoError(t, store.DeleteTemplate("good"))
	assert.Error(t, store.DeleteTemplate("good"))
}

func TestSetEndpoints_Validation(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.SetEndpoints([]loadtest.EndpointConfig{
		{Name: "a", URL: "not-a-url", Weight: 1},
	})
	assert.Error(t, err)

	err = store.SetEndpoints([]loadtest.EndpointConfig{
		{Name: "a", URL: "http://peer.local/", Weight: 1, Enabled: true, Timeout: time.Second},
		{Name: "a", URL: "http://peer.local/x", Weight: 1, Enabled: true, Timeout: time.Second},
	})
	assert.Error(t, err)

	good := []loadtest.EndpointConfig{
		{Name: "home", URL: "http://peer.local/", Weight: 2, Enabled: true, Timeout: time.Second},
	}
	require.NoError(t, store.SetEndpoints(good))
	assert.Equal(t, good, store.Endpoints())
}

func TestSetSafetyLimits(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Error(t, store.SetSafetyLimits(loadtest.SafetyLimits{}))

	limits := loadtest.SafetyLimits{MaxConcurrentUsers: 20, MaxDurationMinutes: 60, MaxSessions: 2}
	require.NoError(t, store.SetSafetyLimits(limits))
	assert.Equal(t, limits, store.SafetyLimits())
}
