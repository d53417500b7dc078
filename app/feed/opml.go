package feed

import (
	"cmp"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

type opmlDocument struct {
	Body opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Type     string        `xml:"type,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Children []opmlOutline `xml:"outline"`
}

// LoadOPML reads the subscription list at path.
func LoadOPML(path string) ([]Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription list: %w", err)
	}
	return ParseOPML(data)
}

// ParseOPML returns every outline, nested ones included, that points at a
// feed. Category outlines without a feed URL are walked but not returned.
func ParseOPML(data []byte) ([]Subscription, error) {
	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	var subs []Subscription
	collectOutlines(&subs, doc.Body.Outlines)
	return subs, nil
}

func collectOutlines(subs *[]Subscription, outlines []opmlOutline) {
	for _, outline := range outlines {
		url := strings.TrimSpace(outline.XMLURL)
		if url != "" && (outline.Type == "" || strings.EqualFold(outline.Type, SourceTypeRSS) || strings.EqualFold(outline.Type, "atom")) {
			*subs = append(*subs, Subscription{
				Name: cmp.Or(strings.TrimSpace(outline.Text), strings.TrimSpace(outline.Title), url),
				URL:  url,
			})
		}
		if len(outline.Children) > 0 {
			collectOutlines(subs, outline.Children)
		}
	}
}
