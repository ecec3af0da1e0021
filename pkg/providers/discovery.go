package providers

import (
	"context"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// FixedURLs yields a static list of pages.
func FixedURLs(urls ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, u := range urls {
			if !yield(u, nil) {
				return
			}
		}
	}
}

// registrableDomain returns e.g. "mtn.co.za" for "https://www.mtn.co.za/x".
func registrableDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	d, err := publicsuffix.Domain(host)
	if err != nil {
		return host
	}
	return d
}

// SameSite reports whether candidate lives on the same registrable domain
// as base.
func SameSite(base, candidate string) bool {
	b := registrableDomain(base)
	return b != "" && b == registrableDomain(candidate)
}

// MappedURLs asks the service for the site map of base and yields the
// same-site URLs accepted by keep. keep may be nil.
func MappedURLs(ctx context.Context, ex Extractor, base string, opts extraction.MapOptions, keep func(string) bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		links, err := ex.MapSite(ctx, base, opts)
		if err != nil {
			yield("", err)
			return
		}
		for _, l := range links {
			if !SameSite(base, l) || (keep != nil && !keep(l)) {
				continue
			}
			if !yield(l, nil) {
				return
			}
		}
	}
}

// LinksFromPage scrapes a listing page and yields the absolute same-site
// hrefs of the anchors matched by selector and accepted by keep.
func LinksFromPage(ctx context.Context, ex Extractor, page, selector string, keep func(string) bool) iter.Seq2[string, error] {
	return LinksFromPages(ctx, ex, []string{page}, selector, keep)
}

// LinksFromPages is LinksFromPage over several listing pages, fetched in one
// batch. A page that cannot be fetched or parsed yields its error and the
// remaining pages are still read.
func LinksFromPages(ctx context.Context, ex Extractor, pages []string, selector string, keep func(string) bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, r := range ex.BatchScrape(ctx, pages, extraction.ScrapeOptions{Formats: []string{"html"}}) {
			if r.Err != nil {
				if !yield("", r.Err) {
					return
				}
				continue
			}
			links, err := anchors(r.URL, r.Response.HTML, selector)
			if err != nil {
				if !yield("", err) {
					return
				}
				continue
			}
			for _, l := range links {
				if !SameSite(r.URL, l) || (keep != nil && !keep(l)) {
					continue
				}
				if !yield(l, nil) {
					return
				}
			}
		}
	}
}

func anchors(page, html, selector string) ([]string, error) {
	base, err := url.Parse(page)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	if selector == "" {
		selector = "a[href]"
	}

	var out []string
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		u := abs.String()
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	})
	return out, nil
}
