// Package app assembles adapters from configuration for the cmd binaries.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ytmp3convert/internal/adapters/apify"
	"ytmp3convert/internal/adapters/corsfallback"
	"ytmp3convert/internal/adapters/localstorage"
	"ytmp3convert/internal/adapters/rapidapi"
	"ytmp3convert/internal/adapters/redisstore"
	"ytmp3convert/internal/adapters/youtubeapi"
	"ytmp3convert/internal/adapters/ytdlp"
	"ytmp3convert/internal/config"
	"ytmp3convert/internal/core/ports"
	"ytmp3convert/internal/service"
)

// HTTPClient returns the client shared by the remote providers. Every
// provider call carries an API credential, so it always goes direct.
func HTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPTimeout}
}

// DownloadClient fetches result links. Those are public, so a request that
// fails at the network level is retried through the configured relay proxies.
func DownloadClient(cfg config.Config, logger *log.Logger) *http.Client {
	return &http.Client{
		Timeout:   10 * time.Minute,
		Transport: corsfallback.New(http.DefaultTransport, cfg.CORSProxies, logger),
	}
}

// Providers builds the metadata and conversion providers selected by cfg.
func Providers(cfg config.Config, client *http.Client) (ports.MetadataProvider, ports.ConversionProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		metadata ports.MetadataProvider
		err      error
	)
	switch cfg.MetadataBackend {
	case config.BackendApify:
		// Actor runs take minutes; keep the proxy transport but drop the short timeout.
		slow := *client
		slow.Timeout = 5 * time.Minute
		metadata, err = apify.NewClient(cfg.ApifyAPIToken, "", &slow)
	default:
		metadata, err = youtubeapi.NewClient(cfg.YouTubeAPIKey, cfg.YouTubeAPIBase, client)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metadata provider: %w", err)
	}

	var converter ports.ConversionProvider
	switch cfg.ConversionBackend {
	case config.BackendYtDlp:
		converter = ytdlp.NewYtDlpConverter(cfg.YtDlpPath)
	default:
		converter, err = rapidapi.NewClient(cfg.RapidAPIKey, cfg.RapidAPIHost, "", client)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize conversion provider: %w", err)
		}
	}
	return metadata, converter, nil
}

// Policy maps the workflow limits from cfg.
func Policy(cfg config.Config) service.Policy {
	return service.Policy{
		MaxDurationSeconds: cfg.MaxDurationSeconds,
		PollInterval:       cfg.PollInterval,
		MaxPollAttempts:    cfg.MaxPollAttempts,
		TargetExt:          cfg.TargetExt,
	}
}

// Stores holds the job persistence chosen at startup.
type Stores struct {
	Jobs  ports.JobStore
	Local *localstorage.LocalStorage
	Redis *redis.Client
}

// Close releases the Redis connection, if any.
func (s Stores) Close() error {
	if s.Redis != nil {
		return s.Redis.Close()
	}
	return nil
}

// OpenStores prefers Redis when REDIS_URL is set and reachable, and falls
// back to job files under the data directory otherwise.
func OpenStores(ctx context.Context, cfg config.Config, logger *log.Logger) Stores {
	local := localstorage.NewLocalStorage(cfg.DataDir)
	stores := Stores{Jobs: local, Local: local}

	if cfg.RedisURL == "" {
		return stores
	}
	rdb, err := redisstore.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Printf("Redis not available, using local job storage: %v", err)
		return stores
	}
	logger.Println("Redis connected successfully")
	stores.Jobs = redisstore.New(rdb, redisstore.JobExpiration)
	stores.Redis = rdb
	return stores
}
