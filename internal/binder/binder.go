// Package binder keeps a list surface in sync with the item events
// published on an event stream.
package binder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsprackett/tubewatch/internal/events"
	"github.com/zsprackett/tubewatch/internal/sse"
)

var (
	ErrBadPayload = errors.New("bad event payload")
	// ErrNoCapturedID is returned in stale-id mode for a status update that
	// arrives before any newVideo event.
	ErrNoCapturedID = errors.New("no audioID captured yet")
)

// Surface is the rendering target. Each method mutates exactly one item.
type Surface interface {
	Append(id string) error
	SetStatus(id, status string) error
	Remove(id string) error
}

// Source is the part of *sse.Stream the binder uses.
type Source interface {
	AddEventListener(name string, fn func(sse.Event))
	OnError(fn func(error))
	Run(ctx context.Context) error
}

type Option func(*Binder)

// WithStaleIDCapture makes statusUpdate target the id of the most recent
// newVideo event instead of the id in its own payload.
func WithStaleIDCapture() Option {
	return func(b *Binder) { b.staleIDCapture = true }
}

// WithErrorLogging logs connection errors. Without it the stream's error
// hook stays inert.
func WithErrorLogging() Option {
	return func(b *Binder) { b.logErrors = true }
}

// Binder registers one handler per named event and applies each event to
// its surface. It holds no item state of its own.
type Binder struct {
	surface Surface
	logger  *slog.Logger

	staleIDCapture bool
	logErrors      bool
	capturedID     string
}

func New(surface Surface, logger *slog.Logger, opts ...Option) *Binder {
	b := &Binder{surface: surface, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind attaches the handlers to src and runs it until ctx is done.
func (b *Binder) Bind(ctx context.Context, src Source) error {
	b.Attach(src)
	return src.Run(ctx)
}

// Attach registers the four named-event handlers and the error hook.
func (b *Binder) Attach(src Source) {
	for _, name := range []string{events.Ping, events.NewVideo, events.StatusUpdate, events.DeleteVideo} {
		src.AddEventListener(name, b.listen)
	}
	src.OnError(func(err error) {
		if b.logErrors {
			b.logger.Warn("stream error", "err", err)
		}
	})
}

func (b *Binder) listen(ev sse.Event) {
	if err := b.Handle(ev); err != nil {
		if errors.Is(err, ErrBadPayload) {
			b.logger.Error("dropping event", "event", ev.Type, "data", ev.Data, "err", err)
			return
		}
		b.logger.Warn("event not applied", "event", ev.Type, "err", err)
	}
}

// Handle applies a single event. Unknown event names are ignored.
func (b *Binder) Handle(ev sse.Event) error {
	switch ev.Type {
	case events.Ping:
		b.logger.Debug("ping", "data", ev.Data)
		return nil
	case events.NewVideo:
		return b.newVideo(ev.Data)
	case events.StatusUpdate:
		return b.statusUpdate(ev.Data)
	case events.DeleteVideo:
		return b.deleteVideo(ev.Data)
	}
	return nil
}

func (b *Binder) newVideo(data string) error {
	p, err := decode(data)
	if err != nil {
		return err
	}
	id, err := p.id()
	if err != nil {
		return err
	}
	b.logger.Debug("newVideo", "audioID", id)
	// Captured before the surface is touched, so a failed append still
	// redirects later updates in stale-id mode.
	b.capturedID = id
	if err := b.surface.Append(id); err != nil {
		return fmt.Errorf("append %s: %w", id, err)
	}
	return nil
}

func (b *Binder) statusUpdate(data string) error {
	p, err := decode(data)
	if err != nil {
		return err
	}
	if p.Status == nil {
		return fmt.Errorf("%w: missing status", ErrBadPayload)
	}

	var id string
	if b.staleIDCapture {
		if b.capturedID == "" {
			return ErrNoCapturedID
		}
		id = b.capturedID
	} else if id, err = p.id(); err != nil {
		return err
	}

	b.logger.Debug("statusUpdate", "audioID", id, "status", *p.Status)
	if err := b.surface.SetStatus(id, *p.Status); err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	return nil
}

func (b *Binder) deleteVideo(data string) error {
	p, err := decode(data)
	if err != nil {
		return err
	}
	id, err := p.id()
	if err != nil {
		return err
	}
	b.logger.Debug("deleteVideo", "audioID", id)
	if err := b.surface.Remove(id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

type payload struct {
	AudioID json.RawMessage `json:"audioID"`
	Status  *string         `json:"status"`
}

func decode(data string) (payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return p, nil
}

// id accepts a JSON string or number; numbers keep their wire spelling.
func (p payload) id() (string, error) {
	raw := bytes.TrimSpace(p.AudioID)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: missing audioID", ErrBadPayload)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("%w: empty audioID", ErrBadPayload)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: audioID must be a string or number", ErrBadPayload)
}
