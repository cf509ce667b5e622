package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.SnapUnit != 5 || cfg.MinBoxWidth != 20 || cfg.MinBoxHeight != 30 {
		t.Fatalf("unexpected geometry defaults: %+v", cfg)
	}
	if cfg.OverlayScope != "headings" {
		t.Fatalf("default scope = %q, want headings", cfg.OverlayScope)
	}
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("VISION_DPI", "300")
	t.Setenv("OVERLAY_SCOPE", "safe")
	t.Setenv("PROCESS_TIMEOUT", "30s")
	t.Setenv("OCR_LANGUAGES", "eng, deu")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DPI != 300 {
		t.Errorf("DPI = %d, want 300", cfg.DPI)
	}
	if cfg.OverlayScope != "safe" {
		t.Errorf("OverlayScope = %q, want safe", cfg.OverlayScope)
	}
	if cfg.ProcessTimeout != 30*time.Second {
		t.Errorf("ProcessTimeout = %v, want 30s", cfg.ProcessTimeout)
	}
	if len(cfg.OCRLanguages) != 2 || cfg.OCRLanguages[1] != "deu" {
		t.Errorf("OCRLanguages = %v", cfg.OCRLanguages)
	}
}

func TestValidateRejectsBadScope(t *testing.T) {
	cfg := Default()
	cfg.OverlayScope = "everything"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad scope")
	}
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("VISION_DPI", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DPI != 144 {
		t.Fatalf("DPI = %d, want default 144", cfg.DPI)
	}
}
