package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds runtime settings for the CLI and the server.
type Config struct {
	MetadataBackend   string
	YouTubeAPIKey     string
	YouTubeAPIBase    string
	ApifyAPIToken     string
	RapidAPIKey       string
	RapidAPIHost      string
	ConversionBackend string
	YtDlpPath         string

	MaxDurationSeconds int
	PollInterval       time.Duration
	MaxPollAttempts    int
	TargetExt          string

	CORSProxies []string
	HTTPTimeout time.Duration

	RedisURL string
	DataDir  string

	ServerAddr     string
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
}

// Backends accepted in METADATA_BACKEND and CONVERSION_BACKEND.
const (
	BackendYouTube  = "youtube"
	BackendApify    = "apify"
	BackendRapidAPI = "rapidapi"
	BackendYtDlp    = "ytdlp"
)

// Load reads environment variables and returns normalized runtime config.
func Load() Config {
	return Config{
		MetadataBackend:   strings.ToLower(getEnv("METADATA_BACKEND", BackendYouTube)),
		YouTubeAPIKey:     strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")),
		YouTubeAPIBase:    getEnv("YOUTUBE_API_BASE", "https://www.googleapis.com/youtube/v3"),
		ApifyAPIToken:     strings.TrimSpace(os.Getenv("APIFY_API_TOKEN")),
		RapidAPIKey:       strings.TrimSpace(os.Getenv("RAPIDAPI_KEY")),
		RapidAPIHost:      getEnv("RAPIDAPI_HOST", "youtube-mp36.p.rapidapi.com"),
		ConversionBackend: strings.ToLower(getEnv("CONVERSION_BACKEND", BackendRapidAPI)),
		YtDlpPath:         strings.TrimSpace(os.Getenv("YTDLP_PATH")),

		MaxDurationSeconds: getEnvInt("MAX_DURATION_SECONDS", 600),
		PollInterval:       time.Duration(getEnvInt("POLL_INTERVAL_MS", 5000)) * time.Millisecond,
		MaxPollAttempts:    getEnvInt("MAX_POLL_ATTEMPTS", 20),
		TargetExt:          strings.TrimPrefix(getEnv("TARGET_EXT", "mp3"), "."),

		CORSProxies: getEnvList("CORS_PROXIES", nil),
		HTTPTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,

		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		DataDir:  getEnv("DATA_DIR", "./data"),

		ServerAddr:     getEnv("SERVER_ADDR", ":8080"),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
	}
}

// Validate reports settings the conversion workflow cannot run without.
func (c Config) Validate() error {
	switch c.MetadataBackend {
	case BackendYouTube, "":
		if c.YouTubeAPIKey == "" {
			return fmt.Errorf("YOUTUBE_API_KEY environment variable not set")
		}
	case BackendApify:
		if c.ApifyAPIToken == "" {
			return fmt.Errorf("APIFY_API_TOKEN environment variable not set")
		}
	default:
		return fmt.Errorf("unknown METADATA_BACKEND %q (want %s or %s)", c.MetadataBackend, BackendYouTube, BackendApify)
	}
	switch c.ConversionBackend {
	case BackendRapidAPI:
		if c.RapidAPIKey == "" {
			return fmt.Errorf("RAPIDAPI_KEY environment variable not set")
		}
	case BackendYtDlp:
	default:
		return fmt.Errorf("unknown CONVERSION_BACKEND %q (want %s or %s)", c.ConversionBackend, BackendRapidAPI, BackendYtDlp)
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out int
	_, err := fmt.Sscanf(value, "%d", &out)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
