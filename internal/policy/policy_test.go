package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

func TestNewStore_EmptyPathUsesDefault(t *testing.T) {
	s, err := NewStore("", logger.Noop())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, Default().Detect.ZScoreThreshold, s.Current().Detect.ZScoreThreshold)
}

func TestNewStore_LoadsFileOverridesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detect:\n  zscore_threshold: 4.5\n"), 0o644))

	s, err := NewStore(path, logger.Noop())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 4.5, s.Current().Detect.ZScoreThreshold)
	// Fields absent from the override file keep their built-in defaults.
	assert.Equal(t, Default().Correlate.Threshold, s.Current().Correlate.Threshold)
}

func TestNewStore_HotReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("correlate:\n  threshold: 3\n"), 0o644))

	s, err := NewStore(path, logger.Noop())
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, 3, s.Current().Correlate.Threshold)

	require.NoError(t, os.WriteFile(path, []byte("correlate:\n  threshold: 9\n"), 0o644))

	require.Eventually(t, func() bool {
		return s.Current().Correlate.Threshold == 9
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewStore_KeepsPreviousSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("correlate:\n  threshold: 3\n"), 0o644))

	s, err := NewStore(path, logger.Noop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 3, s.Current().Correlate.Threshold)
}

func TestNewStore_MissingFileErrors(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "missing.yaml"), logger.Noop())
	assert.Error(t, err)
}
