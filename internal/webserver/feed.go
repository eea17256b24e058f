package webserver

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zsprackett/tubewatch/internal/db"
	"github.com/zsprackett/tubewatch/internal/feed"
)

// handleFeed serves available items as a podcast feed, newest first.
func (s *Server) handleFeed(c *gin.Context) {
	if s.notModified(c) {
		return
	}
	all, err := s.items.List()
	if err != nil {
		abortJSON(c, http.StatusInternalServerError, err)
		return
	}
	var episodes []feed.Episode
	for i := len(all) - 1; i >= 0; i-- {
		it := all[i]
		if it.Status != db.StatusAvailable {
			continue
		}
		info, err := os.Stat(s.items.AudioFile(it.ID))
		if err != nil {
			s.logger.Warn("webserver: feed skips item without audio", "id", it.ID, "err", err)
			continue
		}
		episodes = append(episodes, feed.Episode{
			ID:        it.ID,
			Title:     it.Title,
			SourceURL: it.URL,
			Published: it.UpdatedAt,
			Size:      info.Size(),
		})
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.Status(http.StatusOK)
	if err := feed.Render(c.Writer, s.baseURL(c), feed.Meta{Title: s.cfg.FeedTitle}, episodes); err != nil {
		s.logger.Error("webserver: render feed", "err", err)
	}
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": s.cfg.Version})
}

// baseURL is the configured external URL, or the one the request came in on.
func (s *Server) baseURL(c *gin.Context) string {
	if s.cfg.ExternalURL != "" {
		return strings.TrimRight(s.cfg.ExternalURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

// notModified sets the validators for responses derived from the whole
// item set and answers 304 when the client's copy is current.
func (s *Server) notModified(c *gin.Context) bool {
	lm := s.items.LastModified()
	if lm.IsZero() {
		return false
	}
	etag := `"` + strconv.FormatInt(lm.UnixMilli(), 10) + `"`
	c.Header("ETag", etag)
	c.Header("Last-Modified", lm.UTC().Format(http.TimeFormat))
	for _, tag := range strings.Split(c.GetHeader("If-None-Match"), ",") {
		if strings.TrimSpace(tag) == etag {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
