package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ytmp3convert/internal/core/domain"
)

const (
	DefaultBaseURL = "https://api.apify.com/v2"
	// streamers/youtube-scraper
	youtubeMetadataActorID = "h7sDV53CddomktSi5"
)

// Client implements ports.MetadataProvider by running an Apify YouTube scraper actor.
type Client struct {
	apiToken     string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

// NewClient creates a new Client. A nil httpClient gets a 5 minute timeout.
func NewClient(apiToken, baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(apiToken) == "" {
		return nil, fmt.Errorf("APIFY_API_TOKEN environment variable not set")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		apiToken:     apiToken,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       httpClient,
		pollInterval: 3 * time.Second,
	}, nil
}

type scrapedVideo struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Duration     string `json:"duration"`
}

// FetchMetadata runs the scraper for one video and waits for its dataset.
func (c *Client) FetchMetadata(ctx context.Context, videoID string) (*domain.VideoMetadata, error) {
	videoURL := "https://www.youtube.com/watch?v=" + videoID

	runID, err := c.startActorRun(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start actor run: %v", domain.ErrTransport, err)
	}

	rawData, err := c.waitAndGetResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get results: %v", domain.ErrTransport, err)
	}

	var items []scrapedVideo
	if err := json.Unmarshal(rawData, &items); err != nil {
		return nil, fmt.Errorf("%w: decode dataset: %v", domain.ErrTransport, err)
	}
	if len(items) == 0 || items[0].Title == "" {
		return nil, domain.ErrNotFound
	}

	item := items[0]
	thumb := item.ThumbnailURL
	if thumb == "" {
		thumb = "https://i.ytimg.com/vi/" + videoID + "/mqdefault.jpg"
	}
	return &domain.VideoMetadata{
		Title:           item.Title,
		ThumbnailURL:    thumb,
		DurationSeconds: clockSeconds(item.Duration),
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path + "?token=" + url.QueryEscape(c.apiToken)
}

func (c *Client) startActorRun(ctx context.Context, videoURL string) (string, error) {
	input := map[string]interface{}{
		"startUrls":  []map[string]string{{"url": videoURL}},
		"maxResults": 1,
	}
	body, _ := json.Marshal(input)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/acts/"+youtubeMetadataActorID+"/runs"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("actor run has no id")
	}
	return result.Data.ID, nil
}

func (c *Client) waitAndGetResults(ctx context.Context, runID string) ([]byte, error) {
	statusURL := c.endpoint("/actor-runs/" + runID)

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}

		var status struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		switch status.Data.Status {
		case "SUCCEEDED":
			return c.getDatasetItems(ctx, status.Data.DefaultDatasetID)
		case "FAILED", "ABORTED", "TIMED-OUT":
			return nil, fmt.Errorf("actor run failed with status: %s", status.Data.Status)
		}
		// Still running
		timer.Reset(c.pollInterval)
	}
}

func (c *Client) getDatasetItems(ctx context.Context, datasetID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/datasets/"+datasetID+"/items"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// clockSeconds parses "H:MM:SS", "MM:SS" or plain seconds. Anything else is 0.
func clockSeconds(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
