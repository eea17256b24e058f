package webserver_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zsprackett/tubewatch/internal/db"
	"github.com/zsprackett/tubewatch/internal/events"
	"github.com/zsprackett/tubewatch/internal/items"
	"github.com/zsprackett/tubewatch/internal/page"
	"github.com/zsprackett/tubewatch/internal/sse"
	"github.com/zsprackett/tubewatch/internal/webserver"
	"github.com/zsprackett/tubewatch/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []worker.Job
	full bool
}

func (q *fakeQueue) Submit(job worker.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return worker.ErrQueueFull
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.full
}

type fixture struct {
	srv   *webserver.Server
	hub   *webserver.Hub
	mgr   *items.Manager
	queue *fakeQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	hub, err := webserver.NewHub(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	mgr := items.NewManager(store, t.TempDir(), hub, discardLogger())
	q := &fakeQueue{}
	srv := webserver.New(webserver.Config{Host: "127.0.0.1", PingInterval: time.Hour}, mgr, q, hub, discardLogger())
	return &fixture{srv: srv, hub: hub, mgr: mgr, queue: q}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListItemsEndpoint(t *testing.T) {
	f := newFixture(t)
	it, _ := f.mgr.Create("https://youtu.be/abc")

	w := f.do("GET", "/api/items", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Items []struct {
			AudioID string `json:"audioID"`
			Status  string `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].AudioID != it.ID || resp.Items[0].Status != "Pending" {
		t.Errorf("unexpected items: %+v", resp.Items)
	}
}

func TestCreateItemEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/api/items", `{"url":"https://youtu.be/abc"}`)
	if w.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0].URL != "https://youtu.be/abc" {
		t.Errorf("expected one queued job, got %+v", f.queue.jobs)
	}

	if w := f.do("POST", "/api/items", `{"url":"https://youtu.be/abc"}`); w.Code != 409 {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}
	if w := f.do("POST", "/api/items", `{"url":"  "}`); w.Code != 400 {
		t.Errorf("empty: expected 400, got %d", w.Code)
	}

	f.queue.full = true
	w = f.do("POST", "/api/items", `{"url":"https://youtu.be/other"}`)
	if w.Code != 429 {
		t.Errorf("full queue: expected 429, got %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["error"] == "" {
		t.Error("expected a JSON error body")
	}
}

func TestSetStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	it, _ := f.mgr.Create("https://youtu.be/abc")

	if w := f.do("PUT", "/api/items/"+it.ID+"/status", `{"status":"Downloading"}`); w.Code != 204 {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	got, _ := f.mgr.Get(it.ID)
	if got.Status != db.StatusDownloading {
		t.Errorf("status: got %q", got.Status)
	}

	if w := f.do("PUT", "/api/items/"+it.ID+"/status", `{"status":"Bogus"}`); w.Code != 400 {
		t.Errorf("unknown status: expected 400, got %d", w.Code)
	}
	if w := f.do("PUT", "/api/items/nope/status", `{"status":"Available"}`); w.Code != 404 {
		t.Errorf("missing item: expected 404, got %d", w.Code)
	}
}

func TestItemEventsEndpoint(t *testing.T) {
	f := newFixture(t)
	it, _ := f.mgr.Create("https://youtu.be/abc")
	f.mgr.SetStatus(it.ID, db.StatusAvailable, "")

	w := f.do("GET", "/api/items/"+it.ID+"/events", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Events []db.ItemEvent `json:"events"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(resp.Events))
	}
	if w := f.do("GET", "/api/items/nope/events", ""); w.Code != 404 {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestDeleteItemEndpoint(t *testing.T) {
	f := newFixture(t)
	it, _ := f.mgr.Create("https://youtu.be/abc")

	if w := f.do("DELETE", "/api/items/"+it.ID, ""); w.Code != 204 {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := f.do("DELETE", "/api/items/"+it.ID, ""); w.Code != 404 {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
}

func TestAudioEndpoint(t *testing.T) {
	f := newFixture(t)
	it, _ := f.mgr.Create("https://youtu.be/abc")

	if w := f.do("GET", "/audio/"+it.ID, ""); w.Code != 404 {
		t.Errorf("before download: expected 404, got %d", w.Code)
	}
	if err := os.WriteFile(f.mgr.AudioFile(it.ID), []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := f.do("GET", "/audio/"+it.ID, "")
	if w.Code != 200 || w.Body.String() != "ID3" {
		t.Errorf("after download: got %d %q", w.Code, w.Body.String())
	}
}

func TestIndexPrefillsList(t *testing.T) {
	f := newFixture(t)
	a, _ := f.mgr.Create("https://youtu.be/a")
	b, _ := f.mgr.Create("https://youtu.be/b")
	f.mgr.SetStatus(b.ID, db.StatusAvailable, "")

	w := f.do("GET", "/", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	doc, err := page.Parse(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	ids := doc.Items()
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Fatalf("unexpected items: %v", ids)
	}
	if status, _ := doc.Status(b.ID); status != "Available" {
		t.Errorf("status of b: got %q", status)
	}
}

func TestHealthAndStaticScript(t *testing.T) {
	f := newFixture(t)
	if w := f.do("GET", "/api/health", ""); w.Code != 200 {
		t.Errorf("health: expected 200, got %d", w.Code)
	}
	w := f.do("GET", "/static/list.js", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), "EventSource") {
		t.Errorf("list script: got %d", w.Code)
	}
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type: got %q", ct)
	}
	if resp.Header.Get("X-Accel-Buffering") != "no" {
		t.Error("expected X-Accel-Buffering: no")
	}

	dec := sse.NewDecoder(resp.Body)
	ping, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if ping.Type != "ping" {
		t.Fatalf("first event: got %q", ping.Type)
	}
	if _, err := time.Parse(time.RFC3339, ping.Data); err != nil {
		t.Errorf("ping data is not a timestamp: %q", ping.Data)
	}

	it, _ := f.mgr.Create("https://youtu.be/abc")
	f.mgr.SetStatus(it.ID, db.StatusDownloading, "")

	created, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]string
	json.Unmarshal([]byte(created.Data), &payload)
	if created.Type != "newVideo" || payload["audioID"] != it.ID {
		t.Errorf("unexpected event: %+v", created)
	}

	update, err := dec.Decode()
	if err != nil {
		t.Fatal(err)
	}
	json.Unmarshal([]byte(update.Data), &payload)
	if update.Type != "statusUpdate" || payload["status"] != "Downloading" {
		t.Errorf("unexpected event: %+v", update)
	}
	if id(t, ping) >= id(t, created) || id(t, created) >= id(t, update) {
		t.Errorf("expected increasing ids: %q %q %q", ping.ID, created.ID, update.ID)
	}
}

func TestEventsStreamIDsIncreaseWithInterleavedPings(t *testing.T) {
	f := newFixture(t)
	srv := webserver.New(webserver.Config{Host: "127.0.0.1", PingInterval: time.Millisecond}, f.mgr, f.queue, f.hub, discardLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	waitFor(t, "stream subscription", func() bool { return f.hub.Clients() == 1 })

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				f.hub.Broadcast(events.StatusUpdateEvent("x", "Downloading"))
				time.Sleep(50 * time.Microsecond)
			}
		}()
	}
	defer func() {
		close(stop)
		wg.Wait()
	}()

	dec := sse.NewDecoder(resp.Body)
	last, counts := 0, map[string]int{}
	for n := 0; n < 2000; n++ {
		ev, err := dec.Decode()
		if err != nil {
			break
		}
		counts[ev.Type]++
		if cur := id(t, ev); cur <= last {
			t.Fatalf("event %d: id %d (%s) after %d", n, cur, ev.Type, last)
		} else {
			last = cur
		}
	}
	if counts["ping"] == 0 || counts["statusUpdate"] == 0 {
		t.Errorf("expected pings and updates interleaved, got %v", counts)
	}
}

func id(t *testing.T, ev sse.Event) int {
	t.Helper()
	n, err := strconv.Atoi(ev.ID)
	if err != nil {
		t.Fatalf("event id %q: %v", ev.ID, err)
	}
	return n
}

func TestWebSocketMirror(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitFor(t, "ws subscription", func() bool { return f.hub.Clients() == 1 })

	it, _ := f.mgr.Create("https://youtu.be/abc")

	var msg struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != "newVideo" || msg.Data["audioID"] != it.ID {
		t.Errorf("unexpected frame: %+v", msg)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.mgr.Create("https://youtu.be/abc")

	w := f.do("GET", "/metrics", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `tubewatch_events_broadcast_total{event="newVideo"} 1`) {
		t.Errorf("missing broadcast counter in:\n%s", body)
	}
	if !strings.Contains(body, "tubewatch_stream_clients 0") {
		t.Errorf("missing clients gauge in:\n%s", body)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store, _ := db.Open(":memory:")
	store.Migrate()
	defer store.Close()
	hub, _ := webserver.NewHub(nil)
	mgr := items.NewManager(store, t.TempDir(), hub, discardLogger())
	srv := webserver.New(webserver.Config{Host: "127.0.0.1", Port: 0}, mgr, &fakeQueue{}, hub, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
