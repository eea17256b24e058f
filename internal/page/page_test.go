package page_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsprackett/tubewatch/internal/page"
)

func TestAppendCreatesItemWithPendingLabel(t *testing.T) {
	doc := page.New()
	require.NoError(t, doc.Append("abc"))

	assert.Equal(t, []string{"abc"}, doc.Items())
	text, ok := doc.ItemText("abc")
	require.True(t, ok)
	assert.Equal(t, "abc - Status: Pending", text)

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `<div id="audio-abc"><span>abc - Status: <span id="status-abc">Pending</span></span></div>`)
}

func TestAppendKeepsOneItemPerID(t *testing.T) {
	doc := page.New()
	require.NoError(t, doc.Append("abc"))
	require.NoError(t, doc.SetStatus("abc", "Downloading"))
	require.NoError(t, doc.Append("abc"))

	assert.Equal(t, []string{"abc"}, doc.Items())
	status, _ := doc.Status("abc")
	assert.Equal(t, "Pending", status)
}

func TestAppendEscapesID(t *testing.T) {
	doc := page.New()
	id := `<b>"x"</b>`
	require.NoError(t, doc.Append(id))

	assert.Equal(t, []string{id}, doc.Items())
	text, _ := doc.ItemText(id)
	assert.Equal(t, id+" - Status: Pending", text)
	require.NoError(t, doc.SetStatus(id, "Done"))
}

func TestSetStatusAndRemove(t *testing.T) {
	doc := page.New()
	require.NoError(t, doc.Append("a"))
	require.NoError(t, doc.Append("b"))

	require.NoError(t, doc.SetStatus("a", "Available"))
	text, _ := doc.ItemText("a")
	assert.Equal(t, "a - Status: Available", text)

	require.NoError(t, doc.Remove("a"))
	assert.Equal(t, []string{"b"}, doc.Items())
	_, ok := doc.ItemText("a")
	assert.False(t, ok)
}

func TestMissingElements(t *testing.T) {
	doc := page.New()
	assert.ErrorIs(t, doc.SetStatus("nope", "x"), page.ErrNotFound)
	assert.ErrorIs(t, doc.Remove("nope"), page.ErrNotFound)
}

func TestMissingListContainer(t *testing.T) {
	doc, err := page.Parse(strings.NewReader(`<html><body><ul id="other"></ul></body></html>`))
	require.NoError(t, err)
	assert.ErrorIs(t, doc.Append("abc"), page.ErrNoListContainer)
}

func TestFetchParsesServedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div id="video-list">` +
			`<div id="audio-1"><span>1 - Status: <span id="status-1">Available</span></span></div>` +
			`</div></body></html>`))
	}))
	defer srv.Close()

	doc, err := page.Fetch(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, doc.Items())
	status, ok := doc.Status("1")
	require.True(t, ok)
	assert.Equal(t, "Available", status)
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := page.Fetch(context.Background(), srv.Client(), srv.URL)
	assert.Error(t, err)
}
