package scraper

import (
	"context"
	"log"
	"sort"
	"strings"
)

// mediaCollections are the search-result collection values that identify
// standalone playable items, as opposed to pages and curated groupings.
var mediaCollections = map[string]bool{
	"media":       true,
	"vod":         true,
	"movie":       true,
	"documentary": true,
	"concert":     true,
}

// Discover walks the platform's public surface and returns the media and
// series slugs found: the search endpoint with an empty query (returns the
// whole catalog where available), the category pages, and the home page.
// Individual sources failing is tolerated; only authentication failure
// aborts.
func (s *Scraper) Discover(ctx context.Context) (mediaSlugs, seriesSlugs []string, err error) {
	p := s.api.Platform()
	media := make(map[string]bool)
	series := make(map[string]bool)

	if p.HasSearch {
		if err := s.pace(ctx); err != nil {
			return nil, nil, err
		}
		doc, err := s.api.Search(ctx, "")
		if err != nil {
			if fatal(ctx, err) {
				return nil, nil, err
			}
			log.Printf("search discovery failed: %v", err)
			s.opts.Metrics.RecordError("discovery")
		} else {
			items, _ := doc["data"].([]any)
			for _, item := range items {
				node, ok := item.(map[string]any)
				if !ok {
					continue
				}
				classifySlug(node, media, series, true)
			}
			log.Printf("search: %d media, %d series", len(media), len(series))
		}
	}

	for _, page := range p.CategoryPages {
		if err := s.pace(ctx); err != nil {
			return nil, nil, err
		}
		doc, err := s.api.Page(ctx, page)
		if err != nil {
			if fatal(ctx, err) {
				return nil, nil, err
			}
			log.Printf("category page %s failed: %v", page, err)
			s.opts.Metrics.RecordError("discovery")
			continue
		}
		walkChildren(doc, media, series)
	}

	if err := s.pace(ctx); err != nil {
		return nil, nil, err
	}
	doc, err := s.api.Home(ctx)
	if err != nil {
		if fatal(ctx, err) {
			return nil, nil, err
		}
		log.Printf("home discovery failed: %v", err)
		s.opts.Metrics.RecordError("discovery")
	} else {
		walkChildren(doc, media, series)
	}

	return sortedKeys(media), sortedKeys(series), nil
}

// classifySlug files a node's slug into the media or series set. Search
// results are filtered strictly by collection; page tree nodes are not
// (strict=false), since pages nest content under many collection values.
func classifySlug(node map[string]any, media, series map[string]bool, strict bool) {
	slug, _ := node["slug"].(string)
	if slug == "" {
		return
	}
	mediaType := lowerField(node, "media_type")
	collection := lowerField(node, "collection")
	switch {
	case mediaType == "series" || collection == "series":
		series[slug] = true
	case !strict || mediaCollections[collection]:
		media[slug] = true
	}
}

// walkChildren collects slugs from a page document's children and menu_links
// arrays, recursively. The root document itself is a page, not content, so
// only its descendants are classified.
func walkChildren(doc map[string]any, media, series map[string]bool) {
	for _, key := range []string{"children", "menu_links"} {
		children, _ := doc[key].([]any)
		for _, child := range children {
			if cm, ok := child.(map[string]any); ok {
				classifySlug(cm, media, series, false)
				walkChildren(cm, media, series)
			}
		}
	}
}

func lowerField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return strings.ToLower(v)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
