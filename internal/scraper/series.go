package scraper

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/xezpeleta/eitbren-mugak/internal/client"
	"github.com/xezpeleta/eitbren-mugak/internal/store"
)

// CheckSeries checks every episode of a series. A series record is written
// first, its verdict aggregated from the episode statuses already in the
// store; the episodes are then checked individually.
func (s *Scraper) CheckSeries(ctx context.Context, slug string) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	sr, err := s.api.Series(ctx, slug)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		if errors.Is(err, client.ErrNotFound) {
			log.Printf("skipping series %s: not found", slug)
			return nil
		}
		log.Printf("error fetching series %s: %v", slug, err)
		s.stats.Errors++
		s.opts.Metrics.RecordError("series_fetch")
		return nil
	}

	episodes := sr.Episodes()
	log.Printf("series %s: %d episodes", slug, len(episodes))
	if err := s.itemError(ctx, slug, s.upsertSeriesRecord(sr, episodes)); err != nil {
		return err
	}

	for _, ep := range episodes {
		if s.seen[ep.Slug] {
			continue
		}
		s.seen[ep.Slug] = true
		if err := s.itemError(ctx, ep.Slug, s.checkEpisode(ctx, ep)); err != nil {
			return err
		}
	}
	return nil
}

// checkEpisode checks one episode. The series listing only carries partial
// episode data, so the media endpoint is tried first; when it fails with a
// blocking code that is the verdict, and on other failures the listing data
// has to do.
func (s *Scraper) checkEpisode(ctx context.Context, ep client.Episode) error {
	if err := s.pace(ctx); err != nil {
		return err
	}
	m, err := s.api.Media(ctx, ep.Slug)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == 403 || apiErr.StatusCode == 500) {
			return s.persistAPIRestricted(ep.Slug, ep.SeriesSlug, apiErr)
		}
		log.Printf("no full metadata for episode %s: %v", ep.Slug, err)
		m = &client.Media{
			Slug:         ep.Slug,
			Title:        ep.Title,
			Type:         "episode",
			Duration:     ep.Duration,
			SeriesSlug:   ep.SeriesSlug,
			SeriesTitle:  ep.SeriesTitle,
			SeasonNumber: ep.SeasonNumber,
			Raw:          ep.Raw,
		}
	} else {
		m.Type = "episode"
		if m.SeriesSlug == "" {
			m.SeriesSlug = ep.SeriesSlug
			m.SeriesTitle = ep.SeriesTitle
		}
		if m.SeasonNumber == 0 {
			m.SeasonNumber = ep.SeasonNumber
		}
	}
	return s.persistChecked(ctx, mediaRecord(m, s.api.Platform()), m)
}

// upsertSeriesRecord writes the series row. Its verdict derives from the
// episodes' stored statuses: restricted when every episode is restricted,
// accessible when every episode is accessible, unknown otherwise. Series
// carry no restriction tag of their own.
func (s *Scraper) upsertSeriesRecord(sr *client.Series, episodes []client.Episode) error {
	p := s.api.Platform()

	restricted, accessible := 0, 0
	for _, ep := range episodes {
		geo, _, found, err := s.store.Status(ep.Slug)
		if err != nil {
			return err
		}
		if !found || geo == nil {
			continue
		}
		if *geo {
			restricted++
		} else {
			accessible++
		}
	}
	var verdict *bool
	if n := len(episodes); n > 0 {
		switch {
		case restricted == n:
			v := true
			verdict = &v
		case accessible == n:
			v := false
			verdict = &v
		}
	}

	title := sr.Title
	if title == "" {
		title = humanizeSlug(sr.Slug)
	}
	metadata := make(map[string]any, len(sr.Raw)+1)
	for k, v := range sr.Raw {
		metadata[k] = v
	}
	metadata["platform_urls"] = map[string]any{
		p.Name: p.ContentURL(sr.Slug, "series", ""),
	}

	rec := store.Record{
		Slug:      sr.Slug,
		Title:     title,
		Type:      "series",
		Duration:  rawInt(sr.Raw, "duration"),
		Year:      seriesYear(sr.Raw),
		Genres:    rawGenres(sr.Raw),
		Platforms: []string{p.Name},
		Metadata:  metadata,
	}
	if verdict != nil {
		rec.GeoRestricted = verdict
		rec.LastChecked = time.Now().UTC()
	}
	return s.store.Upsert(rec)
}

func rawInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func seriesYear(m map[string]any) int {
	if y := rawInt(m, "production_year"); y != 0 {
		return y
	}
	return rawInt(m, "year")
}

func rawGenres(m map[string]any) []string {
	entries, _ := m["genres"].([]any)
	var out []string
	for _, e := range entries {
		if em, ok := e.(map[string]any); ok {
			if name, _ := em["name"].(string); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
