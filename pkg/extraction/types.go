package extraction

import (
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// Operation names a billable call to the extraction service.
type Operation string

const (
	OpScrape  Operation = "scrape"
	OpExtract Operation = "extract"
	OpMap     Operation = "map"
)

// Costs is the credit price of each operation.
type Costs struct {
	Scrape  int
	Extract int
	Map     int
}

func (c Costs) of(op Operation) int {
	switch op {
	case OpExtract:
		return c.Extract
	case OpMap:
		return c.Map
	default:
		return c.Scrape
	}
}

// ScrapeOptions tunes a page fetch.
type ScrapeOptions struct {
	Formats         []string          `json:"formats,omitempty"`
	OnlyMainContent bool              `json:"onlyMainContent"`
	IncludeTags     []string          `json:"includeTags,omitempty"`
	ExcludeTags     []string          `json:"excludeTags,omitempty"`
	WaitForMillis   int               `json:"waitFor,omitempty"`
	TimeoutMillis   int               `json:"timeout,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
}

// MapOptions tunes URL discovery on a site.
type MapOptions struct {
	Search            string `json:"search,omitempty"`
	Limit             int    `json:"limit,omitempty"`
	IncludeSubdomains bool   `json:"includeSubdomains,omitempty"`
}

// ScrapeResponse is a fetched page.
type ScrapeResponse struct {
	URL        string
	Markdown   string
	HTML       string
	Links      []string
	StatusCode int
	title      string
}

func parseScrape(target string, body []byte) *ScrapeResponse {
	data := gjson.GetBytes(body, "data")
	res := &ScrapeResponse{
		URL:        target,
		Markdown:   data.Get("markdown").String(),
		HTML:       data.Get("html").String(),
		StatusCode: int(data.Get("metadata.statusCode").Int()),
		title:      data.Get("metadata.title").String(),
	}
	if res.HTML == "" {
		res.HTML = data.Get("rawHtml").String()
	}
	for _, l := range data.Get("links").Array() {
		res.Links = append(res.Links, l.String())
	}
	return res
}

// Title returns the page title from the service metadata, falling back to
// the <title> element of the HTML.
func (r *ScrapeResponse) Title() string {
	if r.title != "" {
		return r.title
	}
	if r.HTML == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(r.HTML))
	if err != nil {
		return ""
	}
	if t, ok := findTitle(doc); ok {
		return strings.TrimSpace(strings.Join(strings.Fields(t), " "))
	}
	return ""
}

func findTitle(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t, ok := findTitle(c); ok {
			return t, ok
		}
	}
	return "", false
}

// ExtractResponse carries the structured JSON the service extracted.
type ExtractResponse struct {
	URL  string
	Data gjson.Result
}

// BatchResult is one entry of a BatchScrape, in input order.
type BatchResult struct {
	URL      string
	Response *ScrapeResponse
	Err      error
}

func parseLinks(body []byte) []string {
	var out []string
	for _, l := range gjson.GetBytes(body, "links").Array() {
		u := l.String()
		if l.IsObject() {
			u = l.Get("url").String()
		}
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
