package client

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/xezpeleta/eitbren-mugak/internal/platform"
	"github.com/xezpeleta/eitbren-mugak/internal/restriction"
)

func TestCheckGeoRestriction_accessibleManifest(t *testing.T) {
	mux := http.NewServeMux()
	okLogin(mux)
	mux.HandleFunc("/manifests/gk/eu/widevine/dash.mpd", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<MPD/>")
	})
	c, srv := newTestClient(t, mux, platform.ProbeManifestCDN)

	media := &Media{
		Slug:      "gk",
		MediaType: "video",
		Manifests: []Manifest{{Type: "dash", URL: srv.URL + "/manifests/gk/eu/widevine/dash.mpd"}},
	}
	res := c.CheckGeoRestriction(context.Background(), "gk", media)
	if res.StatusCode != 200 || res.Method != MethodManifest {
		t.Fatalf("res = %+v", res)
	}
	if v, tag := res.Classify(); v != restriction.VerdictAccessible || tag != "" {
		t.Errorf("classified %s / %q", v, tag)
	}
}

func TestCheckGeoRestriction_restrictedManifest(t *testing.T) {
	mux := http.NewServeMux()
	okLogin(mux)
	mux.HandleFunc("/blocked.mpd", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c, srv := newTestClient(t, mux, platform.ProbeManifestCDN)

	media := &Media{
		Slug:      "gk",
		MediaType: "video",
		Manifests: []Manifest{{Type: "dash", URL: srv.URL + "/blocked.mpd"}},
	}
	res := c.CheckGeoRestriction(context.Background(), "gk", media)
	if v, tag := res.Classify(); v != restriction.VerdictRestricted || tag != "manifest_403" {
		t.Errorf("classified %s / %q, res = %+v", v, tag, res)
	}
}

func TestCheckGeoRestriction_audioTag(t *testing.T) {
	mux := http.NewServeMux()
	okLogin(mux)
	mux.HandleFunc("/blocked.mpd", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c, srv := newTestClient(t, mux, platform.ProbeManifestCDN)

	media := &Media{
		Slug:      "podcast-bat",
		MediaType: "audio",
		Manifests: []Manifest{{Type: "dash", URL: srv.URL + "/blocked.mpd"}},
	}
	res := c.CheckGeoRestriction(context.Background(), "podcast-bat", media)
	if _, tag := res.Classify(); tag != "audio_403" {
		t.Errorf("tag = %q", tag)
	}
}

func TestCheckGeoRestriction_firstAccessibleWins(t *testing.T) {
	mux := http.NewServeMux()
	okLogin(mux)
	mux.HandleFunc("/blocked.mpd", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/open.mpd", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<MPD/>")
	})
	c, srv := newTestClient(t, mux, platform.ProbeManifestCDN)

	media := &Media{
		Slug: "gk",
		Manifests: []Manifest{
			{Type: "dash", URL: srv.URL + "/blocked.mpd"},
			{Type: "hls", URL: srv.URL + "/ignored.m3u8"},
			{Type: "dash", URL: srv.URL + "/open.mpd"},
		},
	}
	res := c.CheckGeoRestriction(context.Background(), "gk", media)
	if v, _ := res.Classify(); v != restriction.VerdictAccessible {
		t.Errorf("verdict = %s, res = %+v", v, res)
	}
}

func TestCheckGeoRestriction_apiLevelBlock(t *testing.T) {
	mux := http.NewServeMux()
	okLogin(mux)
	mux.HandleFunc("/api/v1/media/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"MEDIA_GEO_RESTRICTED_ACCESS"}`)
	})
	c, _ := newTestClient(t, mux, platform.ProbeManifestCDN)

	res := c.CheckGeoRestriction(context.Background(), "blocked", nil)
	if res.Method != MethodAPI || res.StatusCode != 403 {
		t.Fatalf("res = %+v", res)
	}
	if v, tag := res.Classify(); v != restriction.VerdictRestricted || tag != "api_403" {
		t.Errorf("classified %s / %q", v, tag)
	}
}

func TestCheckGeoRestriction_stub(t *testing.T) {
	c, _ := newTestClient(t, nil, platform.ProbeStub)

	res := c.CheckGeoRestriction(context.Background(), "whatever", nil)
	if res.Method != MethodStub {
		t.Fatalf("res = %+v", res)
	}
	if v, _ := res.Classify(); v != restriction.VerdictUnknown {
		t.Errorf("verdict = %s", v)
	}
}

func TestCheckCDNManifest_segment451(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cdn/dash.mpd", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MPD xmlns="urn:mpeg:dash:schema:mpd:2011">
			<Period><AdaptationSet>
				<Representation id="v1"><SegmentTemplate initialization="init-v1.m4s" media="seg-$Number$.m4s"/></Representation>
			</AdaptationSet></Period>
		</MPD>`)
	})
	mux.HandleFunc("/cdn/init-v1.m4s", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("segment probed with %s, want HEAD", r.Method)
		}
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
	})
	c, srv := newTestClient(t, mux, platform.ProbeManifestCDN)

	res := c.checkCDNManifest(context.Background(), srv.URL+"/cdn/dash.mpd", restriction.SourceManifest)
	if res == nil {
		t.Fatal("nil result")
	}
	if res.StatusCode != 451 || res.Method != MethodCDN {
		t.Fatalf("res = %+v", res)
	}
	if v, tag := res.Classify(); v != restriction.VerdictRestricted || tag != "manifest_451" {
		t.Errorf("classified %s / %q", v, tag)
	}
}

func TestCheckCDNManifest_blockedManifest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cdn/dash.mpd", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c, srv := newTestClient(t, mux, platform.ProbeManifestCDN)

	res := c.checkCDNManifest(context.Background(), srv.URL+"/cdn/dash.mpd", restriction.SourceManifest)
	if res == nil || res.StatusCode != 403 {
		t.Fatalf("res = %+v", res)
	}
}

func TestInitSegmentURL(t *testing.T) {
	body := []byte(`<MPD xmlns="urn:mpeg:dash:schema:mpd:2011">
		<Period><AdaptationSet>
			<Representation><SegmentTemplate initialization="video/init.m4s"/></Representation>
		</AdaptationSet></Period>
	</MPD>`)
	got, ok := initSegmentURL("https://cdn.example.org/v/abc/dash.mpd", body)
	if !ok || got != "https://cdn.example.org/v/abc/video/init.m4s" {
		t.Errorf("got %q, ok=%v", got, ok)
	}

	if _, ok := initSegmentURL("https://cdn.example.org/dash.mpd", []byte("not xml")); ok {
		t.Error("garbage manifest should not parse")
	}
}

func TestIsCDNHost(t *testing.T) {
	if !isCDNHost("https://cdn2.eitb.eus/v/x/dash.mpd") {
		t.Error("cdn host not detected")
	}
	if isCDNHost("https://primeran.eus/manifests/x/eu/widevine/dash.mpd") {
		t.Error("api host misdetected as CDN")
	}
}
