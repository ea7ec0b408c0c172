package app

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/utils"
)

type Config struct {
	Port        string
	Environment string

	MaxConcurrentRequests int
	RequestTimeout        time.Duration

	AIProvider          string
	TranscriberProvider string

	ContentRoot string
	TempRoot    string

	InstagramCookiesFile string

	IngestLockTTL time.Duration

	KeyframeFPS      float64
	KeyframeWindow   int
	KeyframeK        float64
	KeyframeCutFloor float64
	KeyframeWorkers  int
	KeyframeWidth    int

	AllowedOrigins []string
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	environment := utils.GetEnv("APP_ENV", "development", log)

	maxConcurrent := utils.GetEnvAsInt("MAX_CONCURRENT_REQUESTS", 4, log)
	requestTimeoutSeconds := utils.GetEnvAsInt("REQUEST_TIMEOUT_SECONDS", 120, log)

	aiProvider := strings.ToLower(utils.GetEnv("AI_PROVIDER", "openai", log))
	transcriberProvider := strings.ToLower(utils.GetEnv("TRANSCRIBER_PROVIDER", "whisper", log))

	contentRoot := utils.GetEnv("CONTENT_ROOT", filepath.Join(".", "content"), log)
	tempRoot := utils.GetEnv("TEMP_ROOT", "", log)

	cookiesFile := utils.GetEnv("INSTAGRAM_COOKIES_FILE", "", log)

	lockTTLSeconds := utils.GetEnvAsInt("INGEST_LOCK_TTL_SECONDS", 600, log)

	keyframeFPS := utils.GetEnvAsFloat("KEYFRAME_FPS", 8.0, log)
	keyframeWindow := utils.GetEnvAsInt("KEYFRAME_WINDOW", 24, log)
	keyframeK := utils.GetEnvAsFloat("KEYFRAME_K", 3.0, log)
	keyframeCutFloor := utils.GetEnvAsFloat("KEYFRAME_CUT_FLOOR", 8.0, log)
	keyframeWorkers := utils.GetEnvAsInt("KEYFRAME_WORKERS", 4, log)
	keyframeWidth := utils.GetEnvAsInt("KEYFRAME_WIDTH", 512, log)

	var origins []string
	rawOrigins := utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log)
	for _, o := range strings.Split(rawOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port:                  port,
		Environment:           environment,
		MaxConcurrentRequests: maxConcurrent,
		RequestTimeout:        time.Duration(requestTimeoutSeconds) * time.Second,
		AIProvider:            aiProvider,
		TranscriberProvider:   transcriberProvider,
		ContentRoot:           contentRoot,
		TempRoot:              tempRoot,
		InstagramCookiesFile:  cookiesFile,
		IngestLockTTL:         time.Duration(lockTTLSeconds) * time.Second,
		KeyframeFPS:           keyframeFPS,
		KeyframeWindow:        keyframeWindow,
		KeyframeK:             keyframeK,
		KeyframeCutFloor:      keyframeCutFloor,
		KeyframeWorkers:       keyframeWorkers,
		KeyframeWidth:         keyframeWidth,
		AllowedOrigins:        origins,
	}
}
