// Package config loads doctrans settings from the environment, with an
// optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds pipeline and engine settings.
type Config struct {
	// StorageDir is the root under which per-job directories are created.
	StorageDir string

	// Rasterization settings.
	DPI      int
	MaxPages int

	// Stage timeouts for external collaborators.
	ProcessTimeout  time.Duration
	OCRTimeout      time.Duration
	RenderTimeout   time.Duration
	MarkdownTimeout time.Duration

	// Geometry settings (native pixels).
	SnapUnit     float64
	MinBoxWidth  float64
	MinBoxHeight float64

	// Overlay settings.
	FontFitRatio float64 // cap on font size as a fraction of box height
	OverlayScope string  // headings | safe | all

	// Preview viewport bounds.
	PreviewMaxWidth  int
	PreviewMaxHeight int

	// OCR language hints (comma separated in OCR_LANGUAGES).
	OCRLanguages []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StorageDir:       getEnvOrDefault("STORAGE_DIR", "./data"),
		DPI:              getEnvAsIntOrDefault("VISION_DPI", 144),
		MaxPages:         getEnvAsIntOrDefault("VISION_MAX_PAGES", 2),
		ProcessTimeout:   getEnvAsDurationOrDefault("PROCESS_TIMEOUT", 120*time.Second),
		OCRTimeout:       getEnvAsDurationOrDefault("OCR_TIMEOUT", 60*time.Second),
		RenderTimeout:    getEnvAsDurationOrDefault("RENDER_TIMEOUT", 90*time.Second),
		MarkdownTimeout:  getEnvAsDurationOrDefault("MARKDOWN_TIMEOUT", 60*time.Second),
		SnapUnit:         getEnvAsFloatOrDefault("SNAP_UNIT", 5),
		MinBoxWidth:      getEnvAsFloatOrDefault("MIN_BOX_WIDTH", 20),
		MinBoxHeight:     getEnvAsFloatOrDefault("MIN_BOX_HEIGHT", 30),
		FontFitRatio:     getEnvAsFloatOrDefault("FONT_FIT_RATIO", 0.8),
		OverlayScope:     getEnvOrDefault("OVERLAY_SCOPE", "headings"),
		PreviewMaxWidth:  getEnvAsIntOrDefault("PREVIEW_MAX_WIDTH", 600),
		PreviewMaxHeight: getEnvAsIntOrDefault("PREVIEW_MAX_HEIGHT", 800),
		OCRLanguages:     splitList(getEnvOrDefault("OCR_LANGUAGES", "eng")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in settings without consulting the environment.
func Default() *Config {
	return &Config{
		StorageDir:       "./data",
		DPI:              144,
		MaxPages:         2,
		ProcessTimeout:   120 * time.Second,
		OCRTimeout:       60 * time.Second,
		RenderTimeout:    90 * time.Second,
		MarkdownTimeout:  60 * time.Second,
		SnapUnit:         5,
		MinBoxWidth:      20,
		MinBoxHeight:     30,
		FontFitRatio:     0.8,
		OverlayScope:     "headings",
		PreviewMaxWidth:  600,
		PreviewMaxHeight: 800,
		OCRLanguages:     []string{"eng"},
	}
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}
	if c.DPI < 36 || c.DPI > 600 {
		return fmt.Errorf("VISION_DPI must be between 36 and 600, got %d", c.DPI)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("VISION_MAX_PAGES must be at least 1, got %d", c.MaxPages)
	}
	if c.SnapUnit <= 0 {
		return fmt.Errorf("SNAP_UNIT must be positive, got %g", c.SnapUnit)
	}
	if c.MinBoxWidth <= 0 || c.MinBoxHeight <= 0 {
		return fmt.Errorf("minimum box dimensions must be positive")
	}
	if c.FontFitRatio <= 0 || c.FontFitRatio > 1 {
		return fmt.Errorf("FONT_FIT_RATIO must be in (0, 1], got %g", c.FontFitRatio)
	}
	switch c.OverlayScope {
	case "headings", "safe", "all":
	default:
		return fmt.Errorf("OVERLAY_SCOPE must be one of headings, safe, all; got %q", c.OverlayScope)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
