package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultThumbnailsSubDir = "thumbnails"
	DefaultArchivesSubDir   = "archives"
)

const (
	defaultThumbnailMaxSize  = 300
	defaultFrameMaxDimension = 1920
	defaultFrameJPEGQuality  = 85
	defaultScanInterval      = 2.0
	defaultEnhanceQueueSize  = 50
	defaultRetryMaxAttempts  = 3
	defaultGrabTimeout       = 30 * time.Second
	defaultClusterDelay      = time.Second
	defaultRetryInitialDelay = time.Second
)

type Config struct {
	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // primary root for generated assets (thumbs, zips)
	ThumbnailsPath   string // full-calculated path for thumbnails
	ArchivesPath     string // full-calculated path for archives

	// frame grabbing
	FFmpegPath        string
	FFprobePath       string
	GrabTimeout       time.Duration
	FrameMaxDimension int
	FrameJPEGQuality  int
	ThumbnailMaxSize  int

	// pipeline
	DefaultScanInterval float64
	ClusterDelay        time.Duration

	// AI providers
	AnalysisProvider    string
	EnhancementProvider string
	FunctionsURL        string
	FunctionsKey        string
	GeminiAPIKey        string
	GeminiBaseURL       string
	OllamaBaseURL       string
	OllamaPort          int
	OllamaModel         string
	RetryInitialDelay   time.Duration
	RetryMaxAttempts    int

	// worker settings
	EnhanceQueueSize int

	// object storage export target; disabled when MinioEndpoint is empty
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	// http
	Port               string
	CORSAllowedOrigins []string
	LogLevel           slog.Level
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		slog.Warn("invalid integer setting, using default", "key", envVar, "value", valStr, "default", defaultVal, "error", err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 {
		slog.Warn("invalid number setting, using default", "key", envVar, "value", valStr, "default", defaultVal, "error", err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val < 0 {
		slog.Warn("invalid duration setting, using default", "key", envVar, "value", valStr, "default", defaultVal, "error", err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		slog.Warn("invalid boolean setting, using default", "key", envVar, "value", valStr, "default", defaultVal)
		return defaultVal
	}
	return val
}

func getEnvListOrDefault(envVar string, defaultVal []string) []string {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		slog.Warn("invalid LOG_LEVEL, using info", "value", s)
		return slog.LevelInfo
	}
	return level
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "framesys.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	thumbSubDir := getEnvOrDefault("THUMBNAILS_SUBDIR", DefaultThumbnailsSubDir)
	archiveSubDir := getEnvOrDefault("ARCHIVES_SUBDIR", DefaultArchivesSubDir)

	cfg := Config{
		DatabasePath:     dbPath,
		MediaStoragePath: absMediaStorage,
		ThumbnailsPath:   filepath.Join(absMediaStorage, thumbSubDir),
		ArchivesPath:     filepath.Join(absMediaStorage, archiveSubDir),

		FFmpegPath:        getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:       getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		GrabTimeout:       getEnvDurationOrDefault("GRAB_TIMEOUT", defaultGrabTimeout),
		FrameMaxDimension: getEnvIntOrDefault("FRAME_MAX_DIMENSION", defaultFrameMaxDimension),
		FrameJPEGQuality:  getEnvIntOrDefault("FRAME_JPEG_QUALITY", defaultFrameJPEGQuality),
		ThumbnailMaxSize:  getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),

		DefaultScanInterval: getEnvFloatOrDefault("DEFAULT_SCAN_INTERVAL", defaultScanInterval),
		ClusterDelay:        getEnvDurationOrDefault("CLUSTER_DELAY", defaultClusterDelay),

		AnalysisProvider:    getEnvOrDefault("ANALYSIS_PROVIDER", "functions"),
		EnhancementProvider: getEnvOrDefault("ENHANCEMENT_PROVIDER", "functions"),
		FunctionsURL:        os.Getenv("FUNCTIONS_URL"),
		FunctionsKey:        os.Getenv("FUNCTIONS_KEY"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:       os.Getenv("GEMINI_BASE_URL"),
		OllamaBaseURL:       getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost"),
		OllamaPort:          getEnvIntOrDefault("OLLAMA_PORT", 11434),
		OllamaModel:         getEnvOrDefault("OLLAMA_MODEL", "llava"),
		RetryInitialDelay:   getEnvDurationOrDefault("RETRY_INITIAL_DELAY", defaultRetryInitialDelay),
		RetryMaxAttempts:    getEnvIntOrDefault("RETRY_MAX_ATTEMPTS", defaultRetryMaxAttempts),

		EnhanceQueueSize: getEnvIntOrDefault("ENHANCE_QUEUE_SIZE", defaultEnhanceQueueSize),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    getEnvBoolOrDefault("MINIO_USE_SSL", false),
		MinioBucket:    getEnvOrDefault("MINIO_BUCKET", "framesys-exports"),

		Port:               getEnvOrDefault("PORT", "8080"),
		CORSAllowedOrigins: getEnvListOrDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		LogLevel:           parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info")),
	}

	if cfg.FrameJPEGQuality > 100 {
		slog.Warn("FRAME_JPEG_QUALITY above 100, clamping", "value", cfg.FrameJPEGQuality)
		cfg.FrameJPEGQuality = 100
	}

	return cfg, nil
}
