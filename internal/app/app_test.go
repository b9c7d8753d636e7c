package app

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytmp3convert/internal/adapters/apify"
	"ytmp3convert/internal/adapters/corsfallback"
	"ytmp3convert/internal/adapters/localstorage"
	"ytmp3convert/internal/adapters/rapidapi"
	"ytmp3convert/internal/adapters/youtubeapi"
	"ytmp3convert/internal/adapters/ytdlp"
	"ytmp3convert/internal/config"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestProviders(t *testing.T) {
	cfg := config.Config{
		YouTubeAPIKey:     "y",
		RapidAPIKey:       "r",
		ConversionBackend: config.BackendRapidAPI,
		HTTPTimeout:       time.Second,
	}
	client := HTTPClient(cfg)
	assert.Nil(t, client.Transport)
	assert.Equal(t, time.Second, client.Timeout)

	meta, conv, err := Providers(cfg, client)
	require.NoError(t, err)
	assert.IsType(t, &youtubeapi.Client{}, meta)
	assert.IsType(t, &rapidapi.Client{}, conv)

	cfg.ConversionBackend = config.BackendYtDlp
	cfg.RapidAPIKey = ""
	_, conv, err = Providers(cfg, client)
	require.NoError(t, err)
	assert.IsType(t, &ytdlp.YtDlpConverter{}, conv)

	cfg.MetadataBackend = config.BackendApify
	cfg.ApifyAPIToken = "a"
	meta, _, err = Providers(cfg, client)
	require.NoError(t, err)
	assert.IsType(t, &apify.Client{}, meta)

	cfg.MetadataBackend = config.BackendYouTube
	cfg.YouTubeAPIKey = ""
	_, _, err = Providers(cfg, client)
	assert.ErrorContains(t, err, "YOUTUBE_API_KEY")
}

func TestDownloadClient_UsesRelayFallback(t *testing.T) {
	cfg := config.Config{CORSProxies: []string{"https://relay.test/?"}}
	client := DownloadClient(cfg, quiet())

	tr, ok := client.Transport.(*corsfallback.Transport)
	require.True(t, ok)
	assert.Equal(t, []string{"https://relay.test/?"}, tr.Proxies)
	assert.Contains(t, tr.Bypass, "googleapis.com")
}

func TestPolicy(t *testing.T) {
	p := Policy(config.Config{MaxDurationSeconds: 900, PollInterval: time.Second, MaxPollAttempts: 3, TargetExt: "m4a"})
	assert.Equal(t, 900, p.MaxDurationSeconds)
	assert.Equal(t, time.Second, p.PollInterval)
	assert.Equal(t, 3, p.MaxPollAttempts)
	assert.Equal(t, "m4a", p.TargetExt)
}

func TestOpenStores_FallsBackToLocal(t *testing.T) {
	dir := t.TempDir()

	s := OpenStores(context.Background(), config.Config{DataDir: dir}, quiet())
	assert.IsType(t, &localstorage.LocalStorage{}, s.Jobs)
	assert.Nil(t, s.Redis)

	s = OpenStores(context.Background(), config.Config{DataDir: dir, RedisURL: "redis://127.0.0.1:1/0"}, quiet())
	assert.IsType(t, &localstorage.LocalStorage{}, s.Jobs)
	assert.NoError(t, s.Close())
}
