package scraper

import (
	"context"
	"log"
	"time"

	"github.com/xezpeleta/eitbren-mugak/internal/restriction"
	"github.com/xezpeleta/eitbren-mugak/internal/store"
)

// CheckChannels probes the platform's live channels and persists them as
// records of type "live". Platforms without a channels page are a no-op.
func (s *Scraper) CheckChannels(ctx context.Context) error {
	p := s.api.Platform()
	if p.ChannelsPage == "" {
		return nil
	}
	if err := s.pace(ctx); err != nil {
		return err
	}
	channels, err := s.api.Channels(ctx)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		log.Printf("listing channels failed: %v", err)
		s.stats.Errors++
		s.opts.Metrics.RecordError("channels")
		return nil
	}
	log.Printf("found %d live channels on %s", len(channels), p.Name)
	s.stats.Discovered += len(channels)

	for _, ch := range channels {
		if s.seen[ch.Slug] {
			continue
		}
		s.seen[ch.Slug] = true
		if err := s.pace(ctx); err != nil {
			return err
		}

		res := s.api.CheckChannel(ctx, ch.Slug)
		s.opts.Metrics.RecordProbe(res.Method)
		verdict, tag := res.Classify()

		title := ch.Title
		if title == "" {
			title = humanizeSlug(ch.Slug)
		}
		metadata := make(map[string]any, len(ch.Raw))
		for k, v := range ch.Raw {
			metadata[k] = v
		}

		now := time.Now().UTC()
		rec := store.Record{
			Slug:            ch.Slug,
			Title:           title,
			Type:            "live",
			Platforms:       []string{p.Name},
			Metadata:        metadata,
			GeoRestricted:   verdict.Bool(),
			RestrictionType: tag,
			LastChecked:     now,
		}
		if err := s.store.Upsert(rec); err != nil {
			if fatal(ctx, err) {
				return err
			}
			log.Printf("error saving channel %s: %v", ch.Slug, err)
			s.stats.Errors++
			s.opts.Metrics.RecordError("store")
			continue
		}
		if err := s.store.RecordCheck(store.Check{
			Slug: ch.Slug, Platform: p.Name, CheckedAt: now,
			GeoRestricted: rec.GeoRestricted, RestrictionType: tag,
			StatusCode: res.StatusCode, Method: res.Method,
		}); err != nil {
			log.Printf("history append for %s failed: %v", ch.Slug, err)
		}

		s.stats.Checked++
		s.opts.Metrics.RecordCheck(p.Name, verdict.String())
		switch verdict {
		case restriction.VerdictRestricted:
			log.Printf("channel %s: restricted (%s)", ch.Slug, tag)
			s.stats.Restricted++
		case restriction.VerdictAccessible:
			s.stats.Accessible++
		default:
			s.stats.Unknown++
		}
	}
	return nil
}
