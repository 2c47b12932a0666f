package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultUploadSubDir         = "upload"
	DefaultUploadOriginalSubDir = "upload-original"
	DefaultResizedSubDir        = "resized"
	DefaultPreviewSubDir        = "preview"
	DefaultSplitSubDir          = "split"
	DefaultSplit3SubDir         = "split3"
	DefaultTrashSubDir          = "trashimg"
	DefaultDataSubDir           = "data"

	HistoryFileName    = "history.json"
	CompositesFileName = "composites.json"
)

const (
	defaultPort            = "8080"
	defaultRetentionHours  = 48
	defaultMaxUploadMB     = 75
	defaultMaxUploadFiles  = 15
	defaultPreviewWidth    = 320
	defaultSplitWidth      = 1280
	defaultSplitHeight     = 720
	defaultDividerWidth    = 7
	defaultTrashTemplate   = "wwwroot/jmaka-template-trash-001.png"
	defaultWebRoot         = "wwwroot"
	defaultListLimit       = 200
	defaultSweepMinutes    = 10
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultResizeWidthList = "1280,1920,2440"
)

// LegacyWidthMigrations maps retired rendition widths to the width that replaced them.
// Records still pointing at a retired bucket are moved during the sweep.
var LegacyWidthMigrations = map[int]int{
	1260: 1280,
}

type Config struct {
	Port string

	// sub-path deployment, e.g. "/jmaka"; empty means mounted at root
	BasePath string

	// storage layout
	StorageRoot string // root that holds the content directories and data/
	DataDir     string // full-calculated path for history.json / composites.json

	Retention time.Duration

	// background sweep period; request paths sweep regardless
	SweepInterval time.Duration

	// upload limits
	MaxUploadBytes int64
	MaxUploadFiles int

	// renditions
	ResizeWidths []int
	PreviewWidth int

	// composite canvas settings
	SplitWidth    int
	SplitHeight   int
	DividerWidth  int
	TrashTemplate string

	ListLimit int

	WebRoot     string
	CORSOrigins []string

	LogLevel  string
	LogFormat string
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
	val, err := strconv.Atoi(strings.TrimSpace(valStr))
	if err != nil || val <= 0 {
		slog.Warn("invalid config value, using default",
			slog.String("key", envVar),
			slog.String("value", valStr),
			slog.Int("default", defaultVal),
		)
		return defaultVal
	}
	return val
}

// ParseWidths parses a comma separated width list. The result is sorted ascending
// and free of duplicates.
func ParseWidths(raw string) ([]int, error) {
	seen := make(map[int]bool)
	var widths []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := strconv.Atoi(part)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid resize width '%s'", part)
		}
		if !seen[w] {
			seen[w] = true
			widths = append(widths, w)
		}
	}
	sort.Ints(widths)
	return widths, nil
}

// NormalizeBasePath turns "jmaka/" into "/jmaka"; "" and "/" mean no base path.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

func LoadConfig() (Config, error) {
	root := getEnvOrDefault("JMAKA_STORAGE_ROOT", ".")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for storage root '%s': %w", root, err)
	}

	widths, err := ParseWidths(getEnvOrDefault("JMAKA_RESIZE_WIDTHS", defaultResizeWidthList))
	if err != nil {
		return Config{}, err
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("JMAKA_CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		Port:           getEnvOrDefault("PORT", defaultPort),
		BasePath:       NormalizeBasePath(os.Getenv("JMAKA_BASE_PATH")),
		StorageRoot:    absRoot,
		DataDir:        filepath.Join(absRoot, DefaultDataSubDir),
		Retention:      time.Duration(getEnvIntOrDefault("JMAKA_RETENTION_HOURS", defaultRetentionHours)) * time.Hour,
		SweepInterval:  time.Duration(getEnvIntOrDefault("JMAKA_SWEEP_INTERVAL_MINUTES", defaultSweepMinutes)) * time.Minute,
		MaxUploadBytes: int64(getEnvIntOrDefault("JMAKA_MAX_UPLOAD_MB", defaultMaxUploadMB)) * 1024 * 1024,
		MaxUploadFiles: getEnvIntOrDefault("JMAKA_MAX_UPLOAD_FILES", defaultMaxUploadFiles),
		ResizeWidths:   widths,
		PreviewWidth:   getEnvIntOrDefault("JMAKA_PREVIEW_WIDTH", defaultPreviewWidth),
		SplitWidth:     getEnvIntOrDefault("JMAKA_SPLIT_WIDTH", defaultSplitWidth),
		SplitHeight:    getEnvIntOrDefault("JMAKA_SPLIT_HEIGHT", defaultSplitHeight),
		DividerWidth:   getEnvIntOrDefault("JMAKA_DIVIDER_WIDTH", defaultDividerWidth),
		TrashTemplate:  getEnvOrDefault("JMAKA_TRASH_TEMPLATE", defaultTrashTemplate),
		ListLimit:      defaultListLimit,
		WebRoot:        getEnvOrDefault("JMAKA_WEB_ROOT", defaultWebRoot),
		CORSOrigins:    origins,
		LogLevel:       getEnvOrDefault("JMAKA_LOG_LEVEL", defaultLogLevel),
		LogFormat:      getEnvOrDefault("JMAKA_LOG_FORMAT", defaultLogFormat),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be repaired by falling back to a default.
func (c Config) Validate() error {
	if len(c.ResizeWidths) == 0 {
		return fmt.Errorf("at least one resize width is required")
	}
	if c.SplitWidth <= 0 || c.SplitHeight <= 0 {
		return fmt.Errorf("split canvas must be positive, got %dx%d", c.SplitWidth, c.SplitHeight)
	}
	if c.DividerWidth*2 >= c.SplitWidth {
		return fmt.Errorf("divider width %d does not fit split canvas width %d", c.DividerWidth, c.SplitWidth)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.MaxUploadBytes <= 0 || c.MaxUploadFiles <= 0 {
		return fmt.Errorf("upload limits must be positive")
	}
	return nil
}

// SupportsWidth reports whether w is one of the configured rendition widths.
func (c Config) SupportsWidth(w int) bool {
	for _, sw := range c.ResizeWidths {
		if sw == w {
			return true
		}
	}
	return false
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
