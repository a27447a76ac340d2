package lifecycle

import (
	"context"
	"fmt"
	"io"
	"strings"

	"scout/internal/core"

	"golang.org/x/net/html"
)

// Capturer takes screenshots in the execution context.
type Capturer interface {
	Screenshot(ctx context.Context, name string) error
}

// ElementProbe looks up an element. A nil element with a nil error means
// the selector matched nothing.
type ElementProbe interface {
	Probe(ctx context.Context, selector string) (*core.ElementPayload, error)
}

// A11yScanner runs an accessibility audit of the current page.
type A11yScanner interface {
	Scan(ctx context.Context) ([]Violation, error)
}

// Violation is one accessibility rule failure.
type Violation struct {
	ID          string `json:"id"`
	Impact      string `json:"impact,omitempty"`
	Description string `json:"description,omitempty"`
	Nodes       int    `json:"nodes"`
}

// PageAnalysis summarizes the structure of a page.
type PageAnalysis struct {
	URL    string     `json:"url"`
	Title  string     `json:"title"`
	Counts PageCounts `json:"counts"`
}

type PageCounts struct {
	Links   int `json:"links"`
	Buttons int `json:"buttons"`
	Inputs  int `json:"inputs"`
	Images  int `json:"images"`
	Forms   int `json:"forms"`
}

// AnalyzeHTML counts interactive elements in an HTML document.
func AnalyzeHTML(url string, r io.Reader) (PageAnalysis, error) {
	a := PageAnalysis{URL: url}
	z := html.NewTokenizer(r)
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return a, fmt.Errorf("parsing page: %w", err)
			}
			a.Title = strings.TrimSpace(a.Title)
			return a, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "a":
				a.Counts.Links++
			case "button":
				a.Counts.Buttons++
			case "input", "textarea", "select":
				a.Counts.Inputs++
			case "img":
				a.Counts.Images++
			case "form":
				a.Counts.Forms++
			case "title":
				inTitle = true
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "title" {
				inTitle = false
			}
		case html.TextToken:
			if inTitle && a.Title == "" {
				a.Title = string(z.Text())
			}
		}
	}
}
