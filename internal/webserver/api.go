package webserver

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zsprackett/tubewatch/internal/db"
	"github.com/zsprackett/tubewatch/internal/items"
	"github.com/zsprackett/tubewatch/internal/worker"
)

type itemResponse struct {
	AudioID   string    `json:"audioID"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(it *db.Item) itemResponse {
	return itemResponse{
		AudioID:   it.ID,
		URL:       it.URL,
		Title:     it.Title,
		Status:    string(it.Status),
		Error:     it.Error,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

func abortJSON(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// statusCode maps lifecycle errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, items.ErrEmptyURL):
		return http.StatusBadRequest
	case errors.Is(err, items.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, worker.ErrQueueFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	all, err := s.items.List()
	if err != nil {
		abortJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := indexTemplate.Execute(c.Writer, map[string]any{"Items": all}); err != nil {
		s.logger.Error("webserver: render index", "err", err)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"clients":      s.hub.Clients(),
		"version":      s.cfg.Version,
		"lastModified": s.items.LastModified(),
	})
}

func (s *Server) handleListItems(c *gin.Context) {
	if s.notModified(c) {
		return
	}
	all, err := s.items.List()
	if err != nil {
		abortJSON(c, http.StatusInternalServerError, err)
		return
	}
	out := make([]itemResponse, 0, len(all))
	for _, it := range all {
		out = append(out, toResponse(it))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (s *Server) handleCreateItem(c *gin.Context) {
	var body struct {
		URL string `json:"url" form:"url"`
	}
	if err := c.ShouldBind(&body); err != nil {
		abortJSON(c, http.StatusBadRequest, err)
		return
	}
	if s.queue.Full() {
		abortJSON(c, http.StatusTooManyRequests, worker.ErrQueueFull)
		return
	}
	it, err := s.items.Create(body.URL)
	if err != nil {
		abortJSON(c, statusCode(err), err)
		return
	}
	if err := s.queue.Submit(worker.Job{ID: it.ID, URL: it.URL}); err != nil {
		// The item stays Pending and is queued again on the next start.
		s.logger.Warn("webserver: enqueue failed", "id", it.ID, "err", err)
	}
	c.JSON(http.StatusCreated, toResponse(it))
}

var knownStatuses = map[db.ItemStatus]bool{
	db.StatusPending:     true,
	db.StatusFetchMeta:   true,
	db.StatusDownloading: true,
	db.StatusAvailable:   true,
	db.StatusError:       true,
}

func (s *Server) handleSetStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
		Error  string `json:"error"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortJSON(c, http.StatusBadRequest, err)
		return
	}
	status := db.ItemStatus(body.Status)
	if !knownStatuses[status] {
		abortJSON(c, http.StatusBadRequest, errors.New("unknown status "+body.Status))
		return
	}
	if err := s.items.SetStatus(c.Param("id"), status, body.Error); err != nil {
		abortJSON(c, statusCode(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleItemEvents(c *gin.Context) {
	evts, err := s.items.History(c.Param("id"), 50)
	if err != nil {
		abortJSON(c, statusCode(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evts})
}

func (s *Server) handleDeleteItem(c *gin.Context) {
	if err := s.items.Delete(c.Param("id")); err != nil {
		abortJSON(c, statusCode(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAudio(c *gin.Context) {
	it, err := s.items.Get(c.Param("id"))
	if err != nil {
		abortJSON(c, statusCode(err), err)
		return
	}
	path := s.items.AudioFile(it.ID)
	if _, err := os.Stat(path); err != nil {
		abortJSON(c, http.StatusNotFound, errors.New("audio not downloaded yet"))
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}
