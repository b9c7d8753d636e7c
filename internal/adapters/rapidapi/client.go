package rapidapi

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

const (
	DefaultHost = "youtube-mp36.p.rapidapi.com"

	// HeaderKey and HeaderHost authenticate every request.
	HeaderKey  = "X-RapidAPI-Key"
	HeaderHost = "X-RapidAPI-Host"
)

// Client implements ports.ConversionProvider against the youtube-mp36 API.
type Client struct {
	apiKey  string
	host    string
	baseURL string
	client  *http.Client
}

// NewClient creates a new Client. baseURL defaults to https://<host>.
func NewClient(apiKey, host, baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("RAPIDAPI_KEY environment variable not set")
	}
	if host == "" {
		host = DefaultHost
	}
	if baseURL == "" {
		baseURL = "https://" + host
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:  apiKey,
		host:    host,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}, nil
}

// Convert asks the API for the conversion status of a video. The same request
// both starts the conversion and reports on it.
func (c *Client) Convert(ctx context.Context, videoID string) (*domain.ConversionStatus, error) {
	apiURL := c.baseURL + "/dl?id=" + url.QueryEscape(videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrTransport, err)
	}
	req.Header.Set(HeaderKey, c.apiKey)
	req.Header.Set(HeaderHost, c.host)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: conversion API: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: conversion API status %d: %s", domain.ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status domain.ConversionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: decode conversion API: %v", domain.ErrTransport, err)
	}
	status.Status = strings.ToLower(strings.TrimSpace(status.Status))
	status.Link = strings.TrimSpace(status.Link)
	return &status, nil
}
