package client

// Media is one piece of catalog content as returned by the platform API. Raw
// keeps the full decoded document; the store persists it so the exporter can
// pull fields (description, images, age rating) that the scraper itself never
// looks at.
type Media struct {
	Slug      string
	Title     string
	Type      string // "movie", "series", "episode", "documentary", ...
	MediaType string // "video" or "audio"
	Duration  int    // seconds
	Year      int
	Genres    []string

	// Episode context, present only when the API attached season_data.
	SeriesSlug   string
	SeriesTitle  string
	SeasonNumber int

	Manifests []Manifest
	Raw       map[string]any
}

// Manifest is one playback manifest advertised for a media item.
type Manifest struct {
	Type string // "dash", "hls", ...
	URL  string
}

// IsAudio reports whether the item is an audio-only asset (podcasts mostly).
// The distinction matters for restriction tagging.
func (m *Media) IsAudio() bool {
	return m != nil && m.MediaType == "audio"
}

// Series is a series document with its seasons flattened out of the API's
// nested shape.
type Series struct {
	Slug    string
	Title   string
	Seasons []Season
	Raw     map[string]any
}

// Season groups the episodes of one season. Number falls back to the season
// id when the API omits season_number, and to 1 when both are missing.
type Season struct {
	Number   int
	Episodes []Episode
}

// Episode is one episode entry from a series document. Raw holds the episode
// object itself so per-episode metadata survives into the store.
type Episode struct {
	Slug         string
	Title        string
	Duration     int
	SeriesSlug   string
	SeriesTitle  string
	SeasonNumber int
	Raw          map[string]any
}

func parseMedia(slug string, raw map[string]any) *Media {
	m := &Media{
		Slug:      slug,
		Title:     str(raw, "title"),
		Type:      str(raw, "type"),
		MediaType: str(raw, "media_type"),
		Duration:  num(raw, "duration"),
		Raw:       raw,
	}
	if m.Type == "" {
		m.Type = "unknown"
	}
	if m.Year = num(raw, "production_year"); m.Year == 0 {
		m.Year = num(raw, "year")
	}
	if genres, ok := raw["genres"].([]any); ok {
		for _, g := range genres {
			gm, ok := g.(map[string]any)
			if !ok {
				continue
			}
			if name := str(gm, "name"); name != "" {
				m.Genres = append(m.Genres, name)
			}
		}
	}
	// season_data marks the item as an episode even when the platform labels
	// it with a generic type.
	if sd, ok := raw["season_data"].(map[string]any); ok {
		m.Type = "episode"
		m.SeriesSlug = str(sd, "series_slug")
		m.SeriesTitle = str(sd, "series_title")
		m.SeasonNumber = num(sd, "season_number")
	} else if str(raw, "collection") == "series" {
		m.Type = "series"
	}
	if manifests, ok := raw["manifests"].([]any); ok {
		for _, entry := range manifests {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			m.Manifests = append(m.Manifests, Manifest{
				Type: str(em, "type"),
				URL:  str(em, "manifestURL"),
			})
		}
	}
	return m
}

func parseSeries(slug string, raw map[string]any) *Series {
	s := &Series{
		Slug:  slug,
		Title: str(raw, "title"),
		Raw:   raw,
	}
	seasons, ok := raw["seasons"].([]any)
	if !ok {
		return s
	}
	for _, entry := range seasons {
		sm, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		season := Season{Number: num(sm, "season_number")}
		if season.Number == 0 {
			season.Number = num(sm, "id")
		}
		if season.Number == 0 {
			season.Number = 1
		}
		episodes, _ := sm["episodes"].([]any)
		for _, ep := range episodes {
			epm, ok := ep.(map[string]any)
			if !ok {
				continue
			}
			epSlug := str(epm, "slug")
			if epSlug == "" {
				continue
			}
			season.Episodes = append(season.Episodes, Episode{
				Slug:         epSlug,
				Title:        str(epm, "title"),
				Duration:     num(epm, "duration"),
				SeriesSlug:   slug,
				SeriesTitle:  s.Title,
				SeasonNumber: season.Number,
				Raw:          epm,
			})
		}
		s.Seasons = append(s.Seasons, season)
	}
	return s
}

// Episodes flattens all seasons into one slice in season order.
func (s *Series) Episodes() []Episode {
	var out []Episode
	for _, season := range s.Seasons {
		out = append(out, season.Episodes...)
	}
	return out
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// num reads a numeric field decoded from JSON, where all numbers arrive as
// float64.
func num(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
