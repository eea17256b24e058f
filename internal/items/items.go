// Package items owns the item lifecycle. Every change is written to the
// store first and then announced to stream clients.
package items

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zsprackett/tubewatch/internal/db"
	"github.com/zsprackett/tubewatch/internal/events"
)

var (
	ErrEmptyURL  = errors.New("no url provided")
	ErrDuplicate = errors.New("item already present")
)

type Manager struct {
	db          *db.DB
	audioPath   string
	broadcaster events.Broadcaster
	logger      *slog.Logger
}

func NewManager(store *db.DB, audioPath string, broadcaster events.Broadcaster, logger *slog.Logger) *Manager {
	return &Manager{
		db:          store,
		audioPath:   audioPath,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// AudioFile returns where the audio for id is stored.
func (m *Manager) AudioFile(id string) string {
	return filepath.Join(m.audioPath, id+".mp3")
}

// Create stores a Pending item for rawURL and broadcasts newVideo.
func (m *Manager) Create(rawURL string) (*db.Item, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	dup, err := m.db.HasURL(rawURL)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, rawURL)
	}

	now := time.Now()
	it := &db.Item{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Title:     PlaceholderTitle(rawURL),
		Status:    db.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.db.SaveItem(it); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, rawURL)
		}
		return nil, err
	}
	m.record(it.ID, "created", "")
	m.logger.Info("item created", "id", it.ID, "url", rawURL)
	m.broadcast(events.NewVideoEvent(it.ID, it.Title))
	return it, nil
}

// SetStatus records a status change and broadcasts statusUpdate.
func (m *Manager) SetStatus(id string, status db.ItemStatus, errText string) error {
	if err := m.db.WriteStatus(id, status, errText); err != nil {
		return err
	}
	detail, _ := json.Marshal(map[string]string{"to": string(status), "error": errText})
	m.record(id, "status_changed", string(detail))
	m.logger.Debug("item status changed", "id", id, "status", status)
	m.broadcast(events.StatusUpdateEvent(id, string(status)))
	return nil
}

func (m *Manager) SetTitle(id, title string) error {
	if err := m.db.UpdateTitle(id, title); err != nil {
		return err
	}
	m.touch()
	return nil
}

// Delete removes the item and its audio file, then broadcasts deleteVideo.
func (m *Manager) Delete(id string) error {
	if err := m.db.DeleteItem(id); err != nil {
		return err
	}
	if err := os.Remove(m.AudioFile(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("remove audio file", "id", id, "err", err)
	}
	m.touch()
	m.logger.Info("item deleted", "id", id)
	m.broadcast(events.DeleteVideoEvent(id))
	return nil
}

func (m *Manager) List() ([]*db.Item, error) {
	return m.db.LoadItems()
}

func (m *Manager) Get(id string) (*db.Item, error) {
	return m.db.GetItem(id)
}

// History returns the newest limit lifecycle records of an item.
func (m *Manager) History(id string, limit int) ([]db.ItemEvent, error) {
	if _, err := m.db.GetItem(id); err != nil {
		return nil, err
	}
	return m.db.GetItemEvents(id, limit)
}

// Unfinished returns items a worker still has to process.
func (m *Manager) Unfinished() ([]*db.Item, error) {
	all, err := m.db.LoadItems()
	if err != nil {
		return nil, err
	}
	var out []*db.Item
	for _, it := range all {
		if !it.Status.Terminal() {
			out = append(out, it)
		}
	}
	return out, nil
}

// LastModified returns when the item set last changed, or the zero time
// when it never has.
func (m *Manager) LastModified() time.Time {
	ms, err := m.db.LastModified()
	if err != nil {
		m.logger.Warn("read last modified", "err", err)
		return time.Time{}
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// record stores a history entry and marks the item set changed.
func (m *Manager) record(id, kind, detail string) {
	if err := m.db.InsertItemEvent(id, kind, detail); err != nil {
		m.logger.Warn("record item event", "id", id, "event", kind, "err", err)
	}
	m.touch()
}

func (m *Manager) touch() {
	if err := m.db.Touch(); err != nil {
		m.logger.Warn("touch last modified", "err", err)
	}
}

func (m *Manager) broadcast(e events.Event) {
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(e)
	}
}

// PlaceholderTitle is shown until metadata arrives: the YouTube video id
// when the URL carries one, the URL otherwise.
func PlaceholderTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if u.Host == "youtu.be" {
		if id := strings.Trim(u.Path, "/"); id != "" {
			return id
		}
	}
	return rawURL
}
