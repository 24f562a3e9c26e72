package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/Abhaythakor/fingerprintweb/model"
)

// ErrUndecodable is returned by Decode when the body declares a charset that cannot be decoded.
var ErrUndecodable = errors.New("undecodable response body")

// Decode converts body to UTF-8 text using the Content-Type header and any in-document hints.
func Decode(raw *model.RawResponse) (string, error) {
	if len(raw.Body) == 0 {
		return "", nil
	}
	contentType := raw.Header.Get("Content-Type")
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label := params["charset"]; label != "" {
			if enc, _ := charset.Lookup(label); enc == nil {
				return "", fmt.Errorf("%w: unknown charset %q", ErrUndecodable, label)
			}
		}
	}

	r, err := charset.NewReader(bytes.NewReader(raw.Body), contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return string(text), nil
}

// Extract builds a snapshot from raw, decoding the body best-effort. It never fails: a body that
// cannot be decoded is matched as raw bytes with a degraded snapshot.
func Extract(raw *model.RawResponse) *Snapshot {
	text, err := Decode(raw)
	if err != nil {
		snap := newSnapshot(raw, string(raw.Body))
		snap.Degraded = true
		return snap
	}
	return FromText(raw, text)
}

// FromText builds a snapshot from raw using text as the already decoded body.
func FromText(raw *model.RawResponse, text string) *Snapshot {
	snap := newSnapshot(raw, text)
	if !isMarkup(raw.Header.Get("Content-Type"), text) {
		snap.Degraded = true
		return snap
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		snap.Degraded = true
		return snap
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		for _, attr := range []string{"name", "property", "http-equiv"} {
			if name, ok := s.Attr(attr); ok && strings.TrimSpace(name) != "" {
				key := strings.ToLower(strings.TrimSpace(name))
				snap.Meta[key] = append(snap.Meta[key], content)
				break
			}
		}
	})

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			snap.Scripts = append(snap.Scripts, src)
		}
	})

	snap.Generators = append(snap.Generators, snap.Meta["generator"]...)
	if dt := doctype(doc); dt != "" {
		snap.Generators = append(snap.Generators, dt)
	}
	return snap
}

func newSnapshot(raw *model.RawResponse, text string) *Snapshot {
	return &Snapshot{
		URL:     raw.URL,
		Status:  raw.Status,
		Headers: normalizeHeaders(raw.Header),
		Cookies: parseCookies(raw.Header),
		HTML:    text,
		Meta:    map[string][]string{},
	}
}

// isMarkup reports whether the body should be parsed as HTML. Missing content types are sniffed.
func isMarkup(contentType, text string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return false
		}
		switch {
		case mediaType == "text/html", mediaType == "application/xhtml+xml":
			return true
		case strings.HasSuffix(mediaType, "xml"), mediaType == "text/plain":
			return looksLikeHTML(text)
		}
		return false
	}
	return looksLikeHTML(text)
}

func looksLikeHTML(text string) bool {
	head := strings.ToLower(text)
	if len(head) > 1024 {
		head = head[:1024]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype") ||
		strings.Contains(head, "<head") || strings.Contains(head, "<body")
}

// doctype renders the document's doctype node, e.g. `<!DOCTYPE html>`.
func doctype(doc *goquery.Document) string {
	for _, root := range doc.Nodes {
		for n := root.FirstChild; n != nil; n = n.NextSibling {
			if n.Type != html.DoctypeNode {
				continue
			}
			var b strings.Builder
			b.WriteString("<!DOCTYPE ")
			b.WriteString(n.Data)
			for _, a := range n.Attr {
				switch a.Key {
				case "public":
					fmt.Fprintf(&b, " PUBLIC %q", a.Val)
				case "system":
					if !hasAttr(n, "public") {
						b.WriteString(" SYSTEM")
					}
					fmt.Fprintf(&b, " %q", a.Val)
				}
			}
			b.WriteString(">")
			return b.String()
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
