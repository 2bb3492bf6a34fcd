package client

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/xezpeleta/eitbren-mugak/internal/platform"
	"github.com/xezpeleta/eitbren-mugak/internal/restriction"
)

func TestChannels_walksPageTree(t *testing.T) {
	mux := http.NewServeMux()
	okLogin(mux)
	mux.HandleFunc("/api/v1/pages/zuzenekoak", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"title": "Zuzenekoak",
			"children": [
				{"type": "section", "items": [
					{"type": "live", "slug": "etb1", "title": "ETB1", "mpd": "https://cdn.example.org/etb1.mpd"},
					{"type": "live", "slug": "etb2", "title": "ETB2", "is_fast_channel": true, "m3u8": "https://cdn.example.org/etb2.m3u8"}
				]},
				{"menu_links": [
					{"type": "live", "slug": "etb1", "title": "ETB1 duplicate"},
					{"type": "vod", "slug": "not-a-channel"}
				]}
			]
		}`)
	})
	c, _ := newTestClient(t, mux, platform.ProbeManifestCDN)

	chans, err := c.Channels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(chans) != 2 {
		t.Fatalf("got %d channels: %+v", len(chans), chans)
	}
	bySlug := map[string]Channel{}
	for _, ch := range chans {
		bySlug[ch.Slug] = ch
	}
	if bySlug["etb1"].Title != "ETB1" || bySlug["etb1"].MPD == "" {
		t.Errorf("etb1 = %+v", bySlug["etb1"])
	}
	if !bySlug["etb2"].IsFastChannel || bySlug["etb2"].M3U8 == "" {
		t.Errorf("etb2 = %+v", bySlug["etb2"])
	}
}

func TestChannels_noChannelsPage(t *testing.T) {
	c, _ := newTestClient(t, nil, platform.ProbeManifestCDN)
	c.platform.ChannelsPage = ""

	chans, err := c.Channels(context.Background())
	if err != nil || chans != nil {
		t.Fatalf("chans = %v, err = %v", chans, err)
	}
}

func TestCheckChannel(t *testing.T) {
	mux := http.NewServeMux()
	okLogin(mux)
	mux.HandleFunc("/api/v1/stream/etb1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/api/v1/stream/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c, _ := newTestClient(t, mux, platform.ProbeManifestCDN)

	res := c.CheckChannel(context.Background(), "etb1")
	if v, _ := res.Classify(); v != restriction.VerdictAccessible {
		t.Errorf("etb1 verdict = %s, res = %+v", v, res)
	}

	res = c.CheckChannel(context.Background(), "blocked")
	if v, tag := res.Classify(); v != restriction.VerdictRestricted || tag != "stream_403" {
		t.Errorf("blocked = %s / %q", v, tag)
	}
}

func TestCheckChannel_loginFailureYieldsUnknown(t *testing.T) {
	probed := false
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts.login", func(w http.ResponseWriter, r *http.Request) {
		// Not a Gigya error body: the SSO itself is down.
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/api/v1/stream/etb1", func(w http.ResponseWriter, r *http.Request) {
		probed = true
		fmt.Fprint(w, "ok")
	})
	c, _ := newTestClient(t, mux, platform.ProbeManifestCDN)

	res := c.CheckChannel(context.Background(), "etb1")
	if v, _ := res.Classify(); v != restriction.VerdictUnknown {
		t.Errorf("verdict = %s, res = %+v", v, res)
	}
	if probed {
		t.Error("stream endpoint must not be probed without a session")
	}
}
