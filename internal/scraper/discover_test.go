package scraper

import (
	"context"
	"reflect"
	"testing"

	"github.com/xezpeleta/eitbren-mugak/internal/client"
	"github.com/xezpeleta/eitbren-mugak/internal/restriction"
)

func TestDiscover_combinesSources(t *testing.T) {
	p := testPlatform()
	p.CategoryPages = []string{"/zinema"}
	api := &fakeAPI{
		p: p,
		search: map[string]any{
			"data": []any{
				map[string]any{"slug": "film-bat", "collection": "movie"},
				map[string]any{"slug": "telesaila-bat", "media_type": "series"},
				map[string]any{"slug": "orrialde-bat", "collection": "page"},
			},
		},
		pages: map[string]map[string]any{
			"/zinema": {
				"children": []any{
					map[string]any{"slug": "film-bi", "collection": "vod"},
					map[string]any{
						"title": "azpiatala",
						"children": []any{
							map[string]any{"slug": "telesaila-bi", "collection": "series"},
						},
					},
				},
			},
		},
		home: map[string]any{
			"children": []any{
				map[string]any{"menu_links": []any{
					map[string]any{"slug": "film-hiru"},
				}},
			},
		},
	}
	s := New(api, openStore(t), Options{})

	media, series, err := s.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	wantMedia := []string{"film-bat", "film-bi", "film-hiru"}
	wantSeries := []string{"telesaila-bat", "telesaila-bi"}
	if !reflect.DeepEqual(media, wantMedia) {
		t.Errorf("media = %v, want %v", media, wantMedia)
	}
	if !reflect.DeepEqual(series, wantSeries) {
		t.Errorf("series = %v, want %v", series, wantSeries)
	}
}

func TestDiscover_strictSearchFilter(t *testing.T) {
	// Search results include pages and collections; only playable
	// collections pass. Page trees are not filtered that way.
	media := map[string]bool{}
	series := map[string]bool{}
	classifySlug(map[string]any{"slug": "p", "collection": "page"}, media, series, true)
	classifySlug(map[string]any{"slug": "m", "collection": "documentary"}, media, series, true)
	classifySlug(map[string]any{"slug": "x", "collection": "page"}, media, series, false)
	if media["p"] || !media["m"] || !media["x"] {
		t.Errorf("media = %v", media)
	}
}

func TestCheckChannels(t *testing.T) {
	p := testPlatform()
	p.Name = "etbon.eus"
	api := &fakeAPI{
		p: p,
		channels: []client.Channel{
			{Slug: "etb1", Title: "ETB1", Raw: map[string]any{"slug": "etb1", "type": "live"}},
			{Slug: "etb2", Title: "ETB2", IsFastChannel: true, Raw: map[string]any{"slug": "etb2", "type": "live", "is_fast_channel": true}},
		},
		channelProbes: map[string]client.ProbeResult{
			"etb2": {StatusCode: 403, Source: restriction.SourceStream, Method: client.MethodStream},
		},
	}
	st := openStore(t)
	s := New(api, st, Options{})

	if err := s.CheckChannels(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Stats().Checked != 2 || s.Stats().Restricted != 1 || s.Stats().Accessible != 1 {
		t.Errorf("stats = %+v", s.Stats())
	}

	rec, err := st.BySlug("etb2")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != "live" || rec.RestrictionType != "stream_403" {
		t.Errorf("channel record = %+v", rec)
	}
}
