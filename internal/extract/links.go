// Package extract turns fetched HTML into a queryable document and the list
// of anchor targets it links to.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parse builds a document from body. Malformed markup never fails; only a
// reader error would.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Links parses html and returns the targets of every a[href] resolved
// against base, in document order. Duplicates are kept.
func Links(html []byte, base string) ([]string, error) {
	doc, err := Parse(html)
	if err != nil {
		return nil, err
	}
	return LinksFrom(doc, base)
}

// LinksFrom is Links for an already parsed document. References that do not
// parse as URLs are skipped.
func LinksFrom(doc *goquery.Document, base string) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	links := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, baseURL.ResolveReference(ref).String())
	})
	return links, nil
}
