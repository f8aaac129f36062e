// Package fetch retrieves web pages for the content curator and converts
// them to Markdown suitable for LLM prompts.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/logger"
)

var (
	reSpace    = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// Page is a fetched and converted web page.
type Page struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Title       string `json:"title,omitempty"`
	Markdown    string `json:"markdown"`
}

// Fetcher downloads pages with a size cap and converts HTML to Markdown.
type Fetcher struct {
	cfg    config.FetchConfig
	log    *logger.Logger
	client *http.Client
}

// New creates a Fetcher from the fetch configuration.
func New(cfg config.FetchConfig, log *logger.Logger) *Fetcher {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = 2 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "feedpilot/1.0"
	}
	return &Fetcher{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Fetch downloads the URL and returns the page as Markdown. Non-HTML
// responses are returned verbatim in the Markdown field.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if !f.cfg.Enabled {
		return nil, fmt.Errorf("page fetching is disabled in configuration")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > f.cfg.MaxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes exceeds %d bytes limit",
			resp.ContentLength, f.cfg.MaxResponseSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) >= f.cfg.MaxResponseSize {
		return nil, fmt.Errorf("response truncated: exceeds %d bytes limit", f.cfg.MaxResponseSize)
	}

	contentType := resp.Header.Get("Content-Type")
	page := &Page{
		URL:         url,
		Status:      resp.StatusCode,
		ContentType: contentType,
	}

	if strings.Contains(contentType, "text/html") {
		page.Title = extractTitle(string(body))
		page.Markdown = f.htmlToMarkdown(string(body))
	} else {
		page.Markdown = string(body)
	}
	return page, nil
}

func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func (f *Fetcher) htmlToMarkdown(html string) string {
	opts := &md.Options{
		HeadingStyle:    "atx",
		CodeBlockStyle:  "fenced",
		EmDelimiter:     "*",
		StrongDelimiter: "**",
	}

	converter := md.NewConverter("", true, opts)
	converter.Keep("a", "img")
	converter.AddRules(md.Rule{
		Filter: []string{"nav", "footer", "aside", "script", "style"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			empty := ""
			return &empty
		},
	})

	markdown, err := converter.ConvertString(html)
	if err != nil {
		f.log.Error("Failed to convert HTML to Markdown", err)
		return ""
	}

	markdown = reSpace.ReplaceAllString(markdown, " ")
	markdown = reNewlines.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}
