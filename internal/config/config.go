package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Recognition RecognitionConfig
	Detector    DetectorConfig
	Database    DatabaseConfig
}

type RecognitionConfig struct {
	Tolerance      float64       // maximum embedding distance for a match (default 0.6)
	DebounceWindow time.Duration // minimum interval between logged events per identity (default 5m)
	MaxConcurrent  int           // concurrent detector calls allowed (default 4)
	HNSWThreshold  int           // gallery size above which the HNSW index kicks in (0 disables)
}

type DetectorConfig struct {
	URL          string // detector/encoder service base URL (defaults to http://localhost:8000)
	Mode         string // detection model: "hog" (fast, CPU) or "cnn" (accurate, slow)
	NumJitters   int    // resampling passes used to stabilize the encoding (>=1)
	EncoderModel string // encoding model tier: "small" or "large"
	Dim          int    // embedding dimensionality (defaults to 128)
	MaxImageSize int    // longest image edge in pixels before uploads get downscaled
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable in Go duration syntax (e.g. "5m", "90s").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envString reads an environment variable with a fallback.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Recognition: RecognitionConfig{
			Tolerance:      envFloat("FACE_TOLERANCE", 0.6),
			DebounceWindow: envDuration("ATTENDANCE_DEBOUNCE_WINDOW", 5*time.Minute),
			MaxConcurrent:  envInt("DETECTOR_MAX_CONCURRENT", 4),
			HNSWThreshold:  envInt("GALLERY_HNSW_THRESHOLD", 1000),
		},
		Detector: DetectorConfig{
			URL:          envString("DETECTOR_URL", "http://localhost:8000"),
			Mode:         envString("DETECTOR_MODE", "hog"),
			NumJitters:   envInt("DETECTOR_NUM_JITTERS", 1),
			EncoderModel: envString("DETECTOR_ENCODER_MODEL", "large"),
			Dim:          envInt("EMBEDDING_DIM", 128),
			MaxImageSize: envInt("DETECTOR_MAX_IMAGE_SIZE", 1600),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
	}
}
