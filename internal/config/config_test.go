package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Recognition.Tolerance != 0.6 {
		t.Errorf("expected default tolerance 0.6, got %v", cfg.Recognition.Tolerance)
	}
	if cfg.Recognition.DebounceWindow != 5*time.Minute {
		t.Errorf("expected default debounce window 5m, got %v", cfg.Recognition.DebounceWindow)
	}
	if cfg.Detector.Mode != "hog" {
		t.Errorf("expected default detector mode hog, got %q", cfg.Detector.Mode)
	}
	if cfg.Detector.NumJitters != 1 {
		t.Errorf("expected default num jitters 1, got %d", cfg.Detector.NumJitters)
	}
	if cfg.Detector.EncoderModel != "large" {
		t.Errorf("expected default encoder model large, got %q", cfg.Detector.EncoderModel)
	}
	if cfg.Detector.Dim != 128 {
		t.Errorf("expected default embedding dim 128, got %d", cfg.Detector.Dim)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FACE_TOLERANCE", "0.45")
	t.Setenv("ATTENDANCE_DEBOUNCE_WINDOW", "90s")
	t.Setenv("DETECTOR_MODE", "cnn")
	t.Setenv("DETECTOR_NUM_JITTERS", "5")
	t.Setenv("DETECTOR_ENCODER_MODEL", "small")
	t.Setenv("DETECTOR_URL", "http://detector:9000")
	t.Setenv("DATABASE_URL", "postgres://test@localhost/attendance")

	cfg := Load()

	if cfg.Recognition.Tolerance != 0.45 {
		t.Errorf("expected tolerance 0.45, got %v", cfg.Recognition.Tolerance)
	}
	if cfg.Recognition.DebounceWindow != 90*time.Second {
		t.Errorf("expected debounce window 90s, got %v", cfg.Recognition.DebounceWindow)
	}
	if cfg.Detector.Mode != "cnn" {
		t.Errorf("expected detector mode cnn, got %q", cfg.Detector.Mode)
	}
	if cfg.Detector.NumJitters != 5 {
		t.Errorf("expected num jitters 5, got %d", cfg.Detector.NumJitters)
	}
	if cfg.Detector.EncoderModel != "small" {
		t.Errorf("expected encoder model small, got %q", cfg.Detector.EncoderModel)
	}
	if cfg.Detector.URL != "http://detector:9000" {
		t.Errorf("expected detector URL override, got %q", cfg.Detector.URL)
	}
	if cfg.Database.URL != "postgres://test@localhost/attendance" {
		t.Errorf("expected database URL override, got %q", cfg.Database.URL)
	}
}

func TestEnvHelpersIgnoreInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(cfg *Config) bool
	}{
		{
			name:  "invalid int falls back",
			key:   "DETECTOR_NUM_JITTERS",
			value: "banana",
			check: func(cfg *Config) bool { return cfg.Detector.NumJitters == 1 },
		},
		{
			name:  "negative int falls back",
			key:   "DATABASE_MAX_OPEN_CONNS",
			value: "-3",
			check: func(cfg *Config) bool { return cfg.Database.MaxOpenConns == 25 },
		},
		{
			name:  "invalid float falls back",
			key:   "FACE_TOLERANCE",
			value: "not-a-number",
			check: func(cfg *Config) bool { return cfg.Recognition.Tolerance == 0.6 },
		},
		{
			name:  "invalid duration falls back",
			key:   "ATTENDANCE_DEBOUNCE_WINDOW",
			value: "five minutes",
			check: func(cfg *Config) bool { return cfg.Recognition.DebounceWindow == 5*time.Minute },
		},
		{
			name:  "negative duration falls back",
			key:   "ATTENDANCE_DEBOUNCE_WINDOW",
			value: "-10m",
			check: func(cfg *Config) bool { return cfg.Recognition.DebounceWindow == 5*time.Minute },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if !tt.check(Load()) {
				t.Errorf("%s: expected fallback to default for %s=%q", tt.name, tt.key, tt.value)
			}
		})
	}
}
