package restriction

import "testing"

func TestClassify_table(t *testing.T) {
	cases := []struct {
		status       int
		transportErr bool
		source       Source
		want         Verdict
		wantTag      string
	}{
		{200, false, SourceManifest, VerdictAccessible, ""},
		{403, false, SourceManifest, VerdictRestricted, "manifest_403"},
		{403, false, SourceAudio, VerdictRestricted, "audio_403"},
		{451, false, SourceManifest, VerdictRestricted, "manifest_451"},
		{500, false, SourceManifest, VerdictRestricted, "manifest_500"},
		{403, false, SourceAPI, VerdictRestricted, "api_403"},
		{500, false, SourceAPI, VerdictRestricted, "api_500"},
		{403, false, SourceStream, VerdictRestricted, "stream_403"},
		{404, false, SourceManifest, VerdictUnknown, ""},
		{302, false, SourceManifest, VerdictUnknown, ""},
		{0, true, SourceManifest, VerdictUnknown, ""},
		// Transport failure wins even when a status code is present.
		{403, true, SourceManifest, VerdictUnknown, ""},
	}
	for _, c := range cases {
		got, tag := Classify(c.status, c.transportErr, c.source)
		if got != c.want || tag != c.wantTag {
			t.Errorf("Classify(%d, %v, %s) = (%s, %q), want (%s, %q)",
				c.status, c.transportErr, c.source, got, tag, c.want, c.wantTag)
		}
	}
}

func TestClassify_pure(t *testing.T) {
	for i := 0; i < 3; i++ {
		v1, t1 := Classify(403, false, SourceManifest)
		v2, t2 := Classify(403, false, SourceManifest)
		if v1 != v2 || t1 != t2 {
			t.Fatal("Classify is not deterministic")
		}
	}
}

func TestVerdictBoolRoundTrip(t *testing.T) {
	for _, v := range []Verdict{VerdictUnknown, VerdictAccessible, VerdictRestricted} {
		if got := FromBool(v.Bool()); got != v {
			t.Errorf("FromBool(Bool(%s)) = %s", v, got)
		}
	}
	if VerdictUnknown.Bool() != nil {
		t.Error("unknown should map to nil")
	}
}
