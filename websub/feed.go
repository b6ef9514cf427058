package websub

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Feed is a push notification body.
type Feed struct {
	XMLName xml.Name       `xml:"feed"`
	Entries []Entry        `xml:"entry"`
	Deleted []DeletedEntry `xml:"deleted-entry"`
}

// Entry announces a new or updated video.
type Entry struct {
	VideoID   string `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID string `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title     string `xml:"title"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
}

// DeletedEntry is an Atom tombstone; Ref is "yt:video:<id>".
type DeletedEntry struct {
	Ref  string `xml:"ref,attr"`
	When string `xml:"when,attr"`
}

// VideoID strips the tombstone prefix.
func (d DeletedEntry) VideoID() string { return strings.TrimPrefix(d.Ref, "yt:video:") }

// ParseFeed decodes an Atom notification.
func ParseFeed(body []byte) (*Feed, error) {
	var f Feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	for i := range f.Entries {
		f.Entries[i].VideoID = strings.TrimSpace(f.Entries[i].VideoID)
	}
	return &f, nil
}
