package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"makusi", "makusi.eus"},
		{"makusi.eus", "makusi.eus"},
		{"PRIMERAN", "primeran.eus"},
		{" etbon ", "etbon.eus"},
		{"", "primeran.eus"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestContentURL_makusiMultiPath(t *testing.T) {
	p, ok := ByName(Defaults(), "makusi")
	if !ok {
		t.Fatal("makusi.eus not in defaults")
	}
	if got := p.ContentURL("goazen-1", "episode", "goazen-d12"); got != "https://makusi.eus/ikusi/w/goazen-1" {
		t.Errorf("episode URL = %q", got)
	}
	if got := p.ContentURL("goazen-d12", "series", ""); got != "https://makusi.eus/ikusi/s/goazen-d12" {
		t.Errorf("series URL = %q", got)
	}
	if got := p.ContentURL("twin-melody", "vod", ""); got != "https://makusi.eus/ikusi/m/twin-melody" {
		t.Errorf("media URL = %q", got)
	}
	// Episode detected from series linkage even when type is missing.
	if got := p.ContentURL("goazen-2", "", "goazen-d12"); got != "https://makusi.eus/ikusi/w/goazen-2" {
		t.Errorf("linked URL = %q", got)
	}
}

func TestContentURL_singlePath(t *testing.T) {
	p, _ := ByName(Defaults(), "primeran")
	if got := p.ContentURL("la-infiltrada", "movie", ""); got != "https://primeran.eus/m/la-infiltrada" {
		t.Errorf("primeran URL = %q", got)
	}
	e, _ := ByName(Defaults(), "etbon")
	if got := e.ContentURL("vaya-semanita-1", "episode", "vaya-semanita"); got != "https://etbon.eus/m/vaya-semanita-1" {
		t.Errorf("etbon URL = %q", got)
	}
}

func TestManifestURL(t *testing.T) {
	p, _ := ByName(Defaults(), "primeran")
	want := "https://primeran.eus/manifests/la-infiltrada/eu/widevine/dash.mpd"
	if got := p.ManifestURL("la-infiltrada", ""); got != want {
		t.Errorf("ManifestURL = %q, want %q", got, want)
	}
	if got := p.ManifestURL("la-infiltrada", "es"); got == want {
		t.Error("language not applied")
	}
}

func TestLoadFile_overrideAndAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platforms.yaml")
	doc := `platforms:
  - name: makusi
    base_url: https://makusi.example/api/v1
    gigya_api_key: testkey
    manifest_host: makusi.example
    probe: stub
    multi_path_urls: true
  - name: hirugarren
    base_url: https://hirugarren.example/api/v1
    gigya_api_key: otherkey
    manifest_host: hirugarren.example
    probe: manifest+cdn
`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(got) != len(Defaults())+1 {
		t.Fatalf("len = %d, want %d", len(got), len(Defaults())+1)
	}
	m, ok := ByName(got, "makusi.eus")
	if !ok {
		t.Fatal("makusi.eus missing after override")
	}
	if m.BaseURL != "https://makusi.example/api/v1" || m.GigyaAPIKey != "testkey" {
		t.Errorf("override not applied: %+v", m)
	}
	if m.LoginURL == "" {
		t.Error("LoginURL default not filled in")
	}
	if _, ok := ByName(got, "hirugarren.eus"); !ok {
		t.Error("appended platform missing")
	}
}

func TestLoadFile_missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
