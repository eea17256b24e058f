package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRetry is the reconnection delay used until the server sends a retry field.
const DefaultRetry = 3 * time.Second

var (
	// ErrBadResponse is fatal: the stream closes and does not reconnect.
	ErrBadResponse = errors.New("sse: bad response")
	// ErrStreamEnded is reported when the server closes an open stream.
	ErrStreamEnded = errors.New("sse: stream ended")
)

// ReadyState mirrors the EventSource connection states.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Option configures a Stream.
type Option func(*Stream)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Stream) { s.client = c }
}

// WithRetry sets the initial reconnection delay.
func WithRetry(d time.Duration) Option {
	return func(s *Stream) { s.retry = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// Stream is a single subscription to an event-stream URL. Listeners run on
// the goroutine that calls Run, one at a time, in the order the server
// sent the events.
type Stream struct {
	url    string
	client *http.Client
	logger *slog.Logger

	state atomic.Int32

	mu        sync.Mutex
	listeners map[string][]func(Event)
	onOpen    []func()
	onError   []func(error)
	retry     time.Duration
	lastID    string
	cancel    context.CancelFunc
	closed    bool
}

func New(url string, opts ...Option) *Stream {
	s := &Stream{
		url:       url,
		client:    http.DefaultClient,
		logger:    slog.Default(),
		listeners: make(map[string][]func(Event)),
		retry:     DefaultRetry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) URL() string {
	return s.url
}

func (s *Stream) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// LastEventID returns the id that will be sent on the next reconnect.
func (s *Stream) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// AddEventListener registers fn for events named name.
func (s *Stream) AddEventListener(name string, fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = append(s.listeners[name], fn)
}

func (s *Stream) OnOpen(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = append(s.onOpen, fn)
}

// OnError registers fn for connection errors. Reconnection happens
// whether or not anything listens.
func (s *Stream) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// Run connects and dispatches events until ctx is done, Close is called, or
// the server answers with something that is not an event stream. Only the
// last case returns an error.
func (s *Stream) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.state.Store(int32(Closed))
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer s.state.Store(int32(Closed))

	for {
		s.state.Store(int32(Connecting))
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrBadResponse) {
			s.state.Store(int32(Closed))
			s.fail(err)
			return err
		}
		s.fail(err)

		delay := s.retryDelay()
		s.logger.Debug("sse: reconnecting", "url", s.url, "in", delay, "err", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close stops a running stream. A stream cannot be reopened.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.state.Store(int32(Closed))
}

func (s *Stream) connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := s.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sse: connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrBadResponse, resp.Status)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		return fmt.Errorf("%w: content type %q", ErrBadResponse, resp.Header.Get("Content-Type"))
	}

	s.state.Store(int32(Open))
	s.logger.Debug("sse: open", "url", s.url)
	for _, fn := range s.openHooks() {
		fn()
	}

	dec := NewDecoder(resp.Body)
	dec.lastID = s.LastEventID()
	for {
		ev, err := dec.Decode()
		s.sync(dec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamEnded
			}
			return fmt.Errorf("sse: read: %w", err)
		}
		s.dispatch(ev)
	}
}

func (s *Stream) sync(dec *Decoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID = dec.LastEventID()
	if d, ok := dec.Retry(); ok {
		s.retry = d
	}
}

func (s *Stream) dispatch(ev Event) {
	s.mu.Lock()
	fns := append([]func(Event){}, s.listeners[ev.Type]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	fns := append([]func(error){}, s.onError...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (s *Stream) openHooks() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]func(){}, s.onOpen...)
}

func (s *Stream) retryDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry
}
