package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Environment variable names for secrets. These never live in the settings
// file; a .env file or the process environment supplies them.
const (
	EnvClientID     = "SATWATCH_CLIENT_ID"
	EnvClientSecret = "SATWATCH_CLIENT_SECRET"
	EnvPosthogKey   = "POSTHOG_API_KEY"
)

// Settings represents persistent satwatch configuration.
type Settings struct {
	// Local store
	DataDir      string `json:"dataDir"`
	RegistryPath string `json:"registryPath"`
	ReportDBPath string `json:"reportDbPath"`

	// Catalog backend. Backend is "processing" or "search".
	Backend       string  `json:"backend"`
	ProcessingURL string  `json:"processingUrl"`
	SearchURL     string  `json:"searchUrl"`
	TokenURL      string  `json:"tokenUrl"`
	AssetKey      string  `json:"assetKey"`
	Collection    string  `json:"collection"`
	MaxCloudCover float64 `json:"maxCloudCover"`

	// Spectral bands requested from the processing backend. SCLBand names
	// the scene classification band used for cloud masking.
	Bands   []string `json:"bands"`
	SCLBand string   `json:"sclBand"`

	// Acquisition
	BufferKm    float64 `json:"bufferKm"`
	AcquireYear int     `json:"acquireYear"`
	Months      []int   `json:"months"`
	WindowDays  int     `json:"windowDays"`
	Workers     int     `json:"workers"`

	// Rendering
	GrayBand        int    `json:"grayBand"`
	RGBBands        [3]int `json:"rgbBands"`
	RenderCacheSize int    `json:"renderCacheSize"`

	// HTTP server
	ListenAddr string `json:"listenAddr"`
}

// DefaultSettings returns default configuration. The temporal slices match
// the monthly monitoring cadence: January, April, July, October, December.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".satwatch", "data")

	return &Settings{
		DataDir:         dataDir,
		RegistryPath:    filepath.Join(dataDir, "registry.csv"),
		ReportDBPath:    filepath.Join(dataDir, "reports.db"),
		Backend:         "processing",
		ProcessingURL:   "https://openeo.dataspace.copernicus.eu/openeo/1.2/result",
		SearchURL:       "https://catalogue.dataspace.copernicus.eu/stac/search",
		TokenURL:        "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token",
		AssetKey:        "visual",
		Collection:      "SENTINEL2_L2A",
		MaxCloudCover:   50,
		Bands:           []string{"B02", "B03", "B04", "B08"},
		SCLBand:         "SCL",
		BufferKm:        5,
		AcquireYear:     2025,
		Months:          []int{1, 4, 7, 10, 12},
		WindowDays:      28,
		Workers:         3,
		GrayBand:        1,
		RGBBands:        [3]int{3, 2, 1},
		RenderCacheSize: 32,
		ListenAddr:      ":8080",
	}
}

// SettingsPath returns the settings file location, honoring
// SATWATCH_SETTINGS when set.
func SettingsPath() string {
	if p := os.Getenv("SATWATCH_SETTINGS"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".satwatch", "settings.json")
}

// LoadSettings loads configuration from disk. A missing file yields defaults.
func LoadSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// An explicit maxCloudCover of 0 is a valid ceiling, so unset must be
	// told apart from zero before the defaults merge below.
	var presence struct {
		MaxCloudCover *float64 `json:"maxCloudCover"`
	}
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Merge with defaults for any missing fields
	defaults := DefaultSettings()
	if settings.DataDir == "" {
		settings.DataDir = defaults.DataDir
	}
	if settings.RegistryPath == "" {
		settings.RegistryPath = defaults.RegistryPath
	}
	if settings.ReportDBPath == "" {
		settings.ReportDBPath = defaults.ReportDBPath
	}
	if settings.Backend == "" {
		settings.Backend = defaults.Backend
	}
	if settings.ProcessingURL == "" {
		settings.ProcessingURL = defaults.ProcessingURL
	}
	if settings.SearchURL == "" {
		settings.SearchURL = defaults.SearchURL
	}
	if settings.TokenURL == "" {
		settings.TokenURL = defaults.TokenURL
	}
	if settings.AssetKey == "" {
		settings.AssetKey = defaults.AssetKey
	}
	if settings.Collection == "" {
		settings.Collection = defaults.Collection
	}
	if presence.MaxCloudCover == nil {
		settings.MaxCloudCover = defaults.MaxCloudCover
	}
	if len(settings.Bands) == 0 {
		settings.Bands = defaults.Bands
	}
	if settings.SCLBand == "" {
		settings.SCLBand = defaults.SCLBand
	}
	if settings.BufferKm == 0 {
		settings.BufferKm = defaults.BufferKm
	}
	if settings.AcquireYear == 0 {
		settings.AcquireYear = defaults.AcquireYear
	}
	if len(settings.Months) == 0 {
		settings.Months = defaults.Months
	}
	if settings.WindowDays == 0 {
		settings.WindowDays = defaults.WindowDays
	}
	if settings.Workers == 0 {
		settings.Workers = defaults.Workers
	}
	if settings.GrayBand == 0 {
		settings.GrayBand = defaults.GrayBand
	}
	if settings.RGBBands == [3]int{} {
		settings.RGBBands = defaults.RGBBands
	}
	if settings.RenderCacheSize == 0 {
		settings.RenderCacheSize = defaults.RenderCacheSize
	}
	if settings.ListenAddr == "" {
		settings.ListenAddr = defaults.ListenAddr
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings writes configuration to disk.
func SaveSettings(settings *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// Validate rejects configurations that cannot drive a run.
func (s *Settings) Validate() error {
	if s.Backend != "processing" && s.Backend != "search" {
		return fmt.Errorf("invalid backend %q (must be processing or search)", s.Backend)
	}
	if s.MaxCloudCover < 0 || s.MaxCloudCover > 100 {
		return fmt.Errorf("maxCloudCover %v out of range [0, 100]", s.MaxCloudCover)
	}
	if s.BufferKm <= 0 {
		return fmt.Errorf("bufferKm must be positive, got %v", s.BufferKm)
	}
	if s.WindowDays < 1 || s.WindowDays > 28 {
		return fmt.Errorf("windowDays %d out of range [1, 28]", s.WindowDays)
	}
	for _, m := range s.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("invalid month %d", m)
		}
	}
	if s.GrayBand < 1 {
		return fmt.Errorf("grayBand must be 1-based, got %d", s.GrayBand)
	}
	for _, b := range s.RGBBands {
		if b < 1 {
			return fmt.Errorf("rgbBands must be 1-based, got %v", s.RGBBands)
		}
	}
	return nil
}

// Credentials reads the catalog client credentials from the environment.
func Credentials() (clientID, clientSecret string, err error) {
	clientID = os.Getenv(EnvClientID)
	clientSecret = os.Getenv(EnvClientSecret)
	if clientID == "" || clientSecret == "" {
		return "", "", fmt.Errorf("missing credentials: set %s and %s", EnvClientID, EnvClientSecret)
	}
	return clientID, clientSecret, nil
}
