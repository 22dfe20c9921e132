package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// FastModel is used for the standard summary.
	FastModel string `json:"fast_model"`

	// DeepModel is used for the expert analysis.
	DeepModel string `json:"deep_model"`

	// LiveModel is used for the dictation session.
	LiveModel string `json:"live_model"`

	// ThinkingBudget is the reasoning token budget granted to DeepModel.
	ThinkingBudget int `json:"thinking_budget"`

	// SummarizeRetries is the number of extra attempts after a failed summary.
	// 0 means a single round trip.
	SummarizeRetries int `json:"summarize_retries,omitempty"`

	// TechnicianFallback is stamped on calls saved while no technician is set.
	TechnicianFallback string `json:"technician_fallback"`

	DefaultBrand   string `json:"default_brand"`
	DefaultProduct string `json:"default_product"`

	// NoisyLevel and WeakLevel are loudness thresholds on the 0-100 meter scale.
	NoisyLevel float64 `json:"noisy_level"`
	WeakLevel  float64 `json:"weak_level"`

	// SilenceWindowMS is how long without a transcript fragment before a
	// quiet signal is reported as weak.
	SilenceWindowMS int `json:"silence_window_ms"`

	// QualityIntervalMS is the period of the signal quality check.
	QualityIntervalMS int `json:"quality_interval_ms"`

	// CaptureCommand spawns the microphone capture program. It must write
	// raw signed 16-bit little-endian mono PCM at 16 kHz to stdout.
	CaptureCommand []string `json:"capture_command,omitempty"`

	// WebBind and WebPort configure the dashboard listener.
	WebBind string `json:"web_bind"`
	WebPort int    `json:"web_port"`

	// Timezone is the IANA zone used to bucket calls per calendar day.
	// Empty means the system local zone.
	Timezone string `json:"timezone,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FastModel:          "gemini-2.5-flash-lite",
		DeepModel:          "gemini-3-pro-preview",
		LiveModel:          "gemini-2.5-flash-native-audio-preview-12-2025",
		ThinkingBudget:     32768,
		TechnicianFallback: "Expert Anonyme",
		DefaultBrand:       "Atlantic",
		DefaultProduct:     "Passerelle",
		NoisyLevel:         65,
		WeakLevel:          3,
		SilenceWindowMS:    2000,
		QualityIntervalMS:  800,
		CaptureCommand:     []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"},
		WebBind:            "127.0.0.1",
		WebPort:            8791,
	}
}

// BaseDir returns the application directory: $SAV_ASSIST_HOME when set,
// otherwise ~/.sav-assist.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("SAV_ASSIST_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sav-assist"), nil
}

// APIKey returns the Gemini credential from the environment.
func APIKey() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("API_KEY")
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.sav-assist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars when non-zero; CaptureCommand is
// replaced wholesale; DisabledTools is merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		FastModel:          pickString(base.FastModel, overlay.FastModel),
		DeepModel:          pickString(base.DeepModel, overlay.DeepModel),
		LiveModel:          pickString(base.LiveModel, overlay.LiveModel),
		ThinkingBudget:     pickInt(base.ThinkingBudget, overlay.ThinkingBudget),
		SummarizeRetries:   pickInt(base.SummarizeRetries, overlay.SummarizeRetries),
		TechnicianFallback: pickString(base.TechnicianFallback, overlay.TechnicianFallback),
		DefaultBrand:       pickString(base.DefaultBrand, overlay.DefaultBrand),
		DefaultProduct:     pickString(base.DefaultProduct, overlay.DefaultProduct),
		NoisyLevel:         pickFloat(base.NoisyLevel, overlay.NoisyLevel),
		WeakLevel:          pickFloat(base.WeakLevel, overlay.WeakLevel),
		SilenceWindowMS:    pickInt(base.SilenceWindowMS, overlay.SilenceWindowMS),
		QualityIntervalMS:  pickInt(base.QualityIntervalMS, overlay.QualityIntervalMS),
		WebBind:            pickString(base.WebBind, overlay.WebBind),
		WebPort:            pickInt(base.WebPort, overlay.WebPort),
		Timezone:           pickString(base.Timezone, overlay.Timezone),
	}

	result.CaptureCommand = base.CaptureCommand
	if len(overlay.CaptureCommand) > 0 {
		result.CaptureCommand = overlay.CaptureCommand
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// SilenceWindow returns SilenceWindowMS as a duration.
func (c *Config) SilenceWindow() time.Duration {
	return time.Duration(c.SilenceWindowMS) * time.Millisecond
}

// QualityInterval returns QualityIntervalMS as a duration.
func (c *Config) QualityInterval() time.Duration {
	return time.Duration(c.QualityIntervalMS) * time.Millisecond
}

// Location resolves Timezone. An empty zone is time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func pickString(base, overlay string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickFloat(base, overlay float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
