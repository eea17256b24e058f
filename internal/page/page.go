// Package page is an HTML document surface for the item list. The document
// is the only record of the items: ids live in the element ids.
package page

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/zsprackett/tubewatch/internal/events"
)

const (
	ListContainerID = "video-list"
	containerPrefix = "audio-"
	labelPrefix     = "status-"
)

var (
	ErrNoListContainer = errors.New("list container #" + ListContainerID + " not found")
	ErrNotFound        = errors.New("element not found")
)

const blankPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>tubewatch</title></head>
<body><div id="` + ListContainerID + `"></div></body></html>`

// Document wraps a parsed HTML page. It is safe for concurrent use.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// New returns a blank page holding an empty list container.
func New() *Document {
	d, _ := Parse(strings.NewReader(blankPage))
	return d
}

func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Fetch loads the page at url, the way a browser loads the page before its
// scripts run.
func Fetch(ctx context.Context, client *http.Client, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: %s", resp.Status)
	}
	return Parse(resp.Body)
}

// Append adds a list item with a Pending status label. An id that already
// has an item gets its label reset instead of a second item.
func (d *Document) Append(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.byID(ListContainerID)
	if list.Length() == 0 {
		return ErrNoListContainer
	}
	if label := d.byID(labelPrefix + id); label.Length() > 0 {
		label.SetText(events.InitialStatus)
		return nil
	}
	esc := html.EscapeString(id)
	list.AppendHtml(fmt.Sprintf(
		`<div id="%s%s"><span>%s - Status: <span id="%s%s">%s</span></span></div>`,
		containerPrefix, esc, esc, labelPrefix, esc, events.InitialStatus))
	return nil
}

func (d *Document) SetStatus(id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	label := d.byID(labelPrefix + id)
	if label.Length() == 0 {
		return fmt.Errorf("%w: #%s%s", ErrNotFound, labelPrefix, id)
	}
	label.SetText(status)
	return nil
}

func (d *Document) Remove(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	item := d.byID(containerPrefix + id)
	if item.Length() == 0 {
		return fmt.Errorf("%w: #%s%s", ErrNotFound, containerPrefix, id)
	}
	item.Remove()
	return nil
}

// Items returns the ids of the list children in document order.
func (d *Document) Items() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ids []string
	d.byID(ListContainerID).Children().Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("id"); ok && strings.HasPrefix(v, containerPrefix) {
			ids = append(ids, strings.TrimPrefix(v, containerPrefix))
		}
	})
	return ids
}

// ItemText returns the rendered text of an item, e.g. "abc - Status: Pending".
func (d *Document) ItemText(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item := d.byID(containerPrefix + id)
	if item.Length() == 0 {
		return "", false
	}
	return item.Text(), true
}

func (d *Document) Status(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	label := d.byID(labelPrefix + id)
	if label.Length() == 0 {
		return "", false
	}
	return label.Text(), true
}

func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

// byID matches on the attribute value so ids never go through the
// selector parser.
func (d *Document) byID(id string) *goquery.Selection {
	return d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}).First()
}
