// Package corsfallback retries failed outbound requests through a list of
// public CORS relay proxies.
package corsfallback

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// DefaultProxies are tried in order after the direct request fails.
var DefaultProxies = []string{
	"https://corsproxy.io/?",
	"https://api.allorigins.win/raw?url=",
	"https://proxy.cors.sh/",
	"https://cors-anywhere.herokuapp.com/",
}

// Transport is an http.RoundTripper that sends each request directly first
// and falls back to relay proxies only when the direct attempt fails at the
// network level. HTTP error statuses are returned as-is.
//
// Requests carrying credentials never leave through a proxy: an API key or
// Authorization header, a key or token query parameter, or a host in Bypass.
type Transport struct {
	Base    http.RoundTripper
	Proxies []string
	Bypass  []string
	Logger  *log.Logger
}

// New returns a Transport over base. Empty proxies means DefaultProxies.
func New(base http.RoundTripper, proxies []string, logger *log.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if len(proxies) == 0 {
		proxies = DefaultProxies
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{
		Base:    base,
		Proxies: proxies,
		Bypass:  []string{"rapidapi.com", "googleapis.com", "apify.com"},
		Logger:  logger,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Base.RoundTrip(req)
	if err == nil || !t.proxiable(req) {
		return resp, err
	}
	if req.Context().Err() != nil {
		return nil, err
	}

	errs := []error{fmt.Errorf("direct: %w", err)}
	for _, prefix := range t.Proxies {
		preq, perr := proxied(req, prefix)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		t.Logger.Printf("Direct request to %s failed, trying proxy %s", req.URL.Host, prefix)
		resp, perr := t.Base.RoundTrip(preq)
		if perr == nil {
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", prefix, perr))
		if req.Context().Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// credentialParams are query parameters that carry secrets.
var credentialParams = []string{"key", "api_key", "apikey", "token", "access_token"}

func (t *Transport) proxiable(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	if req.Header.Get("X-RapidAPI-Key") != "" || req.Header.Get("Authorization") != "" {
		return false
	}
	query := req.URL.Query()
	for name := range query {
		for _, secret := range credentialParams {
			if strings.EqualFold(name, secret) {
				return false
			}
		}
	}
	host := strings.ToLower(req.URL.Hostname())
	for _, b := range t.Bypass {
		if host == b || strings.HasSuffix(host, "."+b) {
			return false
		}
	}
	return true
}

// proxied clones req with its URL rewritten to prefix+target. Prefixes ending
// in "=" or "?" receive the escaped target; path-style prefixes get it raw.
func proxied(req *http.Request, prefix string) (*http.Request, error) {
	target := req.URL.String()
	var raw string
	if strings.HasSuffix(prefix, "=") || strings.HasSuffix(prefix, "?") {
		raw = prefix + url.QueryEscape(target)
	} else {
		raw = prefix + target
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	out := req.Clone(req.Context())
	out.URL = u
	out.Host = u.Host
	out.RequestURI = ""
	return out, nil
}
