package e2etest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses an HTML fragment such as a rendered notice.
func ParseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ListItems returns the text of every list item in doc.
func ListItems(doc *goquery.Document) []string {
	var items []string
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		items = append(items, strings.TrimSpace(s.Text()))
	})
	return items
}
