package webserver_test

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/zsprackett/tubewatch/internal/db"
	"github.com/zsprackett/tubewatch/internal/webserver"
)

func TestFeedListsAvailableItems(t *testing.T) {
	f := newFixture(t)
	done, _ := f.mgr.Create("https://youtu.be/done")
	f.mgr.SetTitle(done.ID, "Finished song")
	f.mgr.SetStatus(done.ID, db.StatusAvailable, "")
	if err := os.WriteFile(f.mgr.AudioFile(done.ID), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	pending, _ := f.mgr.Create("https://youtu.be/pending")
	missing, _ := f.mgr.Create("https://youtu.be/missing")
	f.mgr.SetStatus(missing.ID, db.StatusAvailable, "")

	w := f.do("GET", "/rss", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("content type: got %q", ct)
	}
	body := w.Body.String()
	want := `<enclosure url="http://example.com/audio/` + done.ID + `" length="5" type="audio/mpeg">`
	if !strings.Contains(body, want) {
		t.Errorf("missing enclosure %s in:\n%s", want, body)
	}
	if !strings.Contains(body, "<title>Finished song</title>") {
		t.Error("expected the item title")
	}
	for _, id := range []string{pending.ID, missing.ID} {
		if strings.Contains(body, id) {
			t.Errorf("item %s has no audio and must not be listed", id)
		}
	}
}

func TestFeedUsesExternalURL(t *testing.T) {
	f := newFixture(t)
	it, _ := f.mgr.Create("https://youtu.be/abc")
	f.mgr.SetStatus(it.ID, db.StatusAvailable, "")
	os.WriteFile(f.mgr.AudioFile(it.ID), []byte("x"), 0o644)

	srv := webserver.New(webserver.Config{ExternalURL: "https://pods.example.net/"}, f.mgr, f.queue, f.hub, discardLogger())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/rss", nil))
	if !strings.Contains(w.Body.String(), `url="https://pods.example.net/audio/`+it.ID+`"`) {
		t.Errorf("expected external url in enclosure:\n%s", w.Body.String())
	}
}

func TestListValidators(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/items", "/rss"} {
		if w := f.do("GET", path, ""); w.Header().Get("ETag") != "" {
			t.Errorf("%s: no ETag expected before any change", path)
		}
	}
	it, _ := f.mgr.Create("https://youtu.be/abc")

	for _, path := range []string{"/api/items", "/rss"} {
		first := f.do("GET", path, "")
		etag := first.Header().Get("ETag")
		if etag == "" || first.Header().Get("Last-Modified") == "" {
			t.Fatalf("%s: expected ETag and Last-Modified, got %v", path, first.Header())
		}

		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("If-None-Match", etag)
		w := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(w, req)
		if w.Code != 304 || w.Body.Len() != 0 {
			t.Errorf("%s: unchanged set: expected empty 304, got %d", path, w.Code)
		}
	}

	before := f.do("GET", "/api/items", "").Header().Get("ETag")
	f.mgr.SetStatus(it.ID, db.StatusDownloading, "")
	req := httptest.NewRequest("GET", "/api/items", nil)
	req.Header.Set("If-None-Match", before)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("changed set: expected 200, got %d", w.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do("GET", "/version", "")
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp["version"] != "dev" {
		t.Errorf("default version: got %v, %v", resp, err)
	}

	srv := webserver.New(webserver.Config{Version: "1.4.0"}, f.mgr, f.queue, f.hub, discardLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/version", nil))
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["version"] != "1.4.0" {
		t.Errorf("configured version: got %q", resp["version"])
	}
}
