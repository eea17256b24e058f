// Package feed renders downloaded items as a podcast RSS 2.0 feed.
package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

const (
	rssVersion = "2.0"
	itunesNS   = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	audioType  = "audio/mpeg"
)

// Episode is one finished download.
type Episode struct {
	ID        string
	Title     string
	SourceURL string
	Published time.Time
	// Size is the audio file length in bytes.
	Size int64
}

// Meta describes the channel.
type Meta struct {
	Title       string
	Description string
	Language    string
}

type rss struct {
	XMLName  xml.Name `xml:"rss"`
	Version  string   `xml:"version,attr"`
	ItunesNS string   `xml:"xmlns:itunes,attr"`
	Channel  channel  `xml:"channel"`
}

type channel struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Language    string `xml:"language"`
	Author      string `xml:"itunes:author"`
	Explicit    string `xml:"itunes:explicit"`
	Items       []item `xml:"item"`
}

type item struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	PubDate     string    `xml:"pubDate"`
	Link        string    `xml:"link"`
	GUID        guid      `xml:"guid"`
	Enclosure   enclosure `xml:"enclosure"`
	Author      string    `xml:"itunes:author"`
}

type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Render writes the feed. base is the externally visible server URL; each
// enclosure points at base/audio/<id>.
func Render(w io.Writer, base string, meta Meta, episodes []Episode) error {
	base = strings.TrimRight(base, "/")
	if meta.Title == "" {
		meta.Title = "tubewatch"
	}
	if meta.Description == "" {
		meta.Description = "Audio downloaded with tubewatch."
	}
	if meta.Language == "" {
		meta.Language = "en-us"
	}

	ch := channel{
		Title:       meta.Title,
		Link:        base + "/",
		Description: meta.Description,
		Language:    meta.Language,
		Author:      meta.Title,
		Explicit:    "false",
	}
	for _, ep := range episodes {
		title := ep.Title
		if title == "" {
			title = ep.ID
		}
		ch.Items = append(ch.Items, item{
			Title:       title,
			Description: "Audio of " + ep.SourceURL,
			PubDate:     ep.Published.UTC().Format(time.RFC1123Z),
			Link:        ep.SourceURL,
			GUID:        guid{IsPermaLink: "false", Value: ep.ID},
			Enclosure: enclosure{
				URL:    base + "/audio/" + url.PathEscape(ep.ID),
				Length: ep.Size,
				Type:   audioType,
			},
			Author: meta.Title,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(rss{Version: rssVersion, ItunesNS: itunesNS, Channel: ch}); err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	return enc.Close()
}
