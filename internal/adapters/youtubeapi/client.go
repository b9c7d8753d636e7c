package youtubeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ytmp3convert/internal/core/domain"
)

// DefaultBaseURL is the YouTube Data API v3 root.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Client implements ports.MetadataProvider using the YouTube Data API v3.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a new Client. A nil httpClient gets a 15 second timeout.
func NewClient(apiKey, baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("YOUTUBE_API_KEY environment variable not set")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}, nil
}

type videosResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	Snippet struct {
		Title      string `json:"title"`
		Thumbnails struct {
			Medium struct {
				URL string `json:"url"`
			} `json:"medium"`
			Default struct {
				URL string `json:"url"`
			} `json:"default"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

// FetchMetadata fetches title, thumbnail and duration for one video.
func (c *Client) FetchMetadata(ctx context.Context, videoID string) (*domain.VideoMetadata, error) {
	params := url.Values{}
	params.Set("id", videoID)
	params.Set("part", "snippet,contentDetails")
	params.Set("key", c.apiKey)
	apiURL := c.baseURL + "/videos?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: youtube data API: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: youtube data API status %d: %s", domain.ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode youtube data API: %v", domain.ErrTransport, err)
	}
	if len(result.Items) == 0 {
		return nil, domain.ErrNotFound
	}

	item := result.Items[0]
	thumb := item.Snippet.Thumbnails.Medium.URL
	if thumb == "" {
		thumb = item.Snippet.Thumbnails.Default.URL
	}
	return &domain.VideoMetadata{
		Title:           item.Snippet.Title,
		ThumbnailURL:    thumb,
		DurationSeconds: domain.ToSeconds(item.ContentDetails.Duration),
	}, nil
}
