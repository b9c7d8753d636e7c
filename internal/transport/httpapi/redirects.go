package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// vanityRoutes are alternate spellings of the converter's name that land on "/".
var vanityRoutes = map[string]string{
	"youtubetomp3":   "/",
	"youtube-to-mp3": "/",
	"youtube2mp3":    "/",
	"youtube-2-mp3":  "/",
	"youtube-mp3":    "/",
	"yt2mp3":         "/",
	"ytmp3":          "/",
}

// vanityOrder fixes the scan order for substring matches on 404 pages.
var vanityOrder = []string{"youtubetomp3", "youtube-to-mp3", "youtube2mp3", "youtube-2-mp3", "youtube-mp3", "yt2mp3", "ytmp3"}

// VanityTarget returns where a request for an unknown path should go.
func VanityTarget(u *url.URL) (string, bool) {
	path := strings.ToLower(strings.Trim(u.Path, "/"))
	path = strings.Replace(path, ".html", "", 1)
	if target, ok := vanityRoutes[path]; ok {
		return target, true
	}

	if !strings.Contains(u.Path, "404.html") {
		return "", false
	}
	if p := strings.ToLower(strings.TrimSpace(u.Query().Get("path"))); p != "" {
		if target, ok := vanityRoutes[p]; ok {
			return target, true
		}
	}
	full := strings.ToLower(u.String())
	for _, route := range vanityOrder {
		if strings.Contains(full, route) {
			return vanityRoutes[route], true
		}
	}
	return "", false
}

// NotFound redirects vanity URLs and answers 404 for everything else.
func NotFound(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		if target, ok := VanityTarget(c.Request.URL); ok {
			c.Redirect(http.StatusFound, target)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found", "path": c.Request.URL.Path})
}
