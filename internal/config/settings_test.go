package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingFileYieldsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "SENTINEL2_L2A", s.Collection)
	assert.Equal(t, []int{1, 4, 7, 10, 12}, s.Months)
	assert.Equal(t, [3]int{3, 2, 1}, s.RGBBands)
	assert.InEpsilon(t, 5.0, s.BufferKm, 1e-9)
}

func TestLoadSettingsMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"collection":"SENTINEL1_GRD","workers":8}`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "SENTINEL1_GRD", s.Collection)
	assert.Equal(t, 8, s.Workers)
	assert.Equal(t, "processing", s.Backend, "unset fields fall back to defaults")
	assert.Equal(t, 28, s.WindowDays)
}

func TestLoadSettingsKeepsExplicitZeroCloudCover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxCloudCover":0}`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.MaxCloudCover, "a configured zero ceiling must survive the defaults merge")
}

func TestLoadSettingsRejectsBadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend":"ftp"}`), 0o644))

	_, err := LoadSettings(path)
	assert.ErrorContains(t, err, "backend")
}

func TestLoadSettingsRejectsBadMonth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"months":[1,13]}`), 0o644))

	_, err := LoadSettings(path)
	assert.ErrorContains(t, err, "month")
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "settings.json")

	s := DefaultSettings()
	s.Collection = "SENTINEL2_L1C"
	s.Months = []int{2, 8}
	require.NoError(t, SaveSettings(s, path))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "SENTINEL2_L1C", loaded.Collection)
	assert.Equal(t, []int{2, 8}, loaded.Months)
}

func TestCredentials(t *testing.T) {
	t.Setenv(EnvClientID, "id-123")
	t.Setenv(EnvClientSecret, "secret-456")

	id, secret, err := Credentials()
	require.NoError(t, err)
	assert.Equal(t, "id-123", id)
	assert.Equal(t, "secret-456", secret)
}

func TestCredentialsMissing(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")

	_, _, err := Credentials()
	assert.Error(t, err)
}
