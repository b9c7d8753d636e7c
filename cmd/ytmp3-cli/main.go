package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ytmp3convert/internal/adapters/console"
	"ytmp3convert/internal/adapters/downloader"
	"ytmp3convert/internal/adapters/errorlog"
	"ytmp3convert/internal/adapters/localstorage"
	"ytmp3convert/internal/adapters/notify"
	"ytmp3convert/internal/app"
	"ytmp3convert/internal/config"
	"ytmp3convert/internal/core/domain"
	"ytmp3convert/internal/core/ports"
	"ytmp3convert/internal/service"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, environment variables might be set manually
		log.Println("No .env file found")
	}

	cfg := config.Load()

	// Parse flags
	url := flag.String("url", "", "YouTube video URL to convert")
	dataDir := flag.String("data-dir", cfg.DataDir, "Base directory for storing job data")
	save := flag.Bool("save", false, "Download the converted file into the job directory")
	backend := flag.String("backend", cfg.ConversionBackend, "Conversion backend: rapidapi or ytdlp")
	flag.Parse()

	if *url == "" {
		fmt.Println("Usage: ytmp3-cli -url <youtube-url> [-data-dir <path>] [-save] [-backend rapidapi|ytdlp]")
		fmt.Println("\nExample:")
		fmt.Println("  ytmp3-cli -url https://www.youtube.com/watch?v=dQw4w9WgXcQ")
		fmt.Println("  ytmp3-cli -url https://youtu.be/dQw4w9WgXcQ -save")
		os.Exit(1)
	}
	cfg.DataDir = *dataDir
	cfg.ConversionBackend = *backend

	// Setup logger
	logger := log.New(os.Stdout, "", log.LstdFlags)

	logger.Println("=== YouTube to MP3 CLI ===")
	logger.Printf("URL: %s", *url)
	logger.Printf("Data Directory: %s", cfg.DataDir)
	logger.Printf("Backend: %s", cfg.ConversionBackend)

	// Initialize adapters
	httpClient := app.HTTPClient(cfg)
	metadata, converter, err := app.Providers(cfg, httpClient)
	if err != nil {
		logger.Fatalf("Failed to initialize providers: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := app.OpenStores(ctx, cfg, logger)

	sinks := notify.Multi{console.NewNotifier(os.Stderr, logger)}
	var errSink *errorlog.Notifier
	if stores.Redis != nil {
		// Shared with the server's GET /api/errors
		errSink = errorlog.NewNotifier(errorlog.NewRedis(stores.Redis), logger)
		sinks = append(sinks, errSink)
	}

	// os.Exit skips defers, so queued error entries are flushed here.
	exit := func(code int) {
		if errSink != nil {
			errSink.Close()
		}
		_ = stores.Close()
		os.Exit(code)
	}

	// Create orchestrator
	orchestrator := service.NewOrchestrator(metadata, converter, sinks, stores.Jobs, app.Policy(cfg), logger)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("\nReceived interrupt signal, cancelling...")
		orchestrator.Cancel()
		cancel()
	}()

	// Run the job
	job, err := orchestrator.Submit(ctx, *url)
	if err != nil {
		logger.Printf("Job failed: %v", err)
		printSummary(job, "")
		if errors.Is(err, service.ErrAbandoned) {
			exit(130)
		}
		exit(1)
	}

	audioPath := ""
	if *save {
		dl := downloader.NewHTTPDownloader(app.DownloadClient(cfg, logger)).WithProgress(func(size int64) io.Writer {
			return console.DownloadBar(os.Stderr, size, "Downloading")
		})
		audioPath, err = saveAudio(ctx, dl, stores.Local, job, logger)
		if err != nil {
			logger.Printf("Download failed: %v", err)
			printSummary(job, "")
			exit(1)
		}
	}

	printSummary(job, audioPath)
	exit(0)
}

func saveAudio(ctx context.Context, dl ports.Downloader, local *localstorage.LocalStorage, job domain.ConversionJob, logger *log.Logger) (string, error) {
	logger.Printf("[JOB %s] Downloading %s...", job.ID, job.Filename)

	body, _, err := dl.Download(ctx, job.ResultURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var audio ports.AudioStorage = local
	path, err := audio.SaveAudio(ctx, job.ID, body, job.Filename)
	if err != nil {
		return "", err
	}

	info, err := local.InspectAudio(path)
	if err != nil {
		logger.Printf("[JOB %s] Warning: could not inspect %s: %v", job.ID, path, err)
		return path, nil
	}
	logger.Printf("[JOB %s] Saved %s (%d bytes, title %q, tagged=%t)", job.ID, path, info.SizeBytes, info.Title, info.Tagged)
	return path, nil
}

func printSummary(job domain.ConversionJob, audioPath string) {
	fmt.Println("\n=== Job Summary ===")
	fmt.Printf("Job ID:       %s\n", job.ID)
	fmt.Printf("Video ID:     %s\n", job.VideoID)
	if job.Metadata != nil {
		fmt.Printf("Title:        %s\n", job.Metadata.Title)
		fmt.Printf("Duration:     %s\n", domain.FormatHMS(job.Metadata.DurationSeconds))
	}
	fmt.Printf("State:        %s\n", job.State)
	fmt.Printf("Polls:        %d/%d\n", job.Attempt, job.MaxAttempts)
	if job.LastError != nil {
		fmt.Printf("Error:        %s (%s)\n", job.LastError.Message, job.LastError.Kind)
	}
	if job.ResultURL != "" {
		fmt.Printf("Download:     %s\n", job.ResultURL)
		fmt.Printf("Filename:     %s\n", job.Filename)
	}
	if audioPath != "" {
		fmt.Printf("Saved To:     %s\n", audioPath)
	}
	if job.CompletedAt != nil {
		fmt.Printf("Completed At: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05 UTC"))
	}
}
