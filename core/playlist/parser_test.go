package playlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const liveMedia = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:41
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:00.000000Z
#EXTINF:6.0,
seg41.ts
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:06.250000Z
#EXTINF:5.5,
seg42.ts
`

func lines(s string) []string {
	return strings.Split(s, "\n")
}

func TestLastSegmentPicksMostRecent(t *testing.T) {
	seg, ok := LastSegment(lines(liveMedia))
	if !ok {
		t.Fatal("expected a segment")
	}
	if seg.URI != "seg42.ts" {
		t.Fatalf("expected seg42.ts, got %q", seg.URI)
	}
	if seg.Duration != 5.5 {
		t.Fatalf("expected duration 5.5, got %v", seg.Duration)
	}
	want := time.Date(2024, 1, 1, 0, 0, 6, 250000000, time.UTC)
	if !seg.StartTime.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, seg.StartTime)
	}
	if seg.StartTime.Location() != time.UTC {
		t.Fatalf("expected UTC start, got %v", seg.StartTime.Location())
	}
}

func TestLastSegmentExtrapolatesProgramDateTime(t *testing.T) {
	text := `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:00.500000Z
#EXTINF:4.0,
a.ts
#EXTINF:4.0,
b.ts
`
	seg, ok := LastSegment(lines(text))
	if !ok || seg.URI != "b.ts" {
		t.Fatalf("expected b.ts, got %+v (ok=%v)", seg, ok)
	}
	want := time.Date(2024, 1, 1, 0, 0, 4, 500000000, time.UTC)
	if !seg.StartTime.Equal(want) {
		t.Fatalf("expected extrapolated start %v, got %v", want, seg.StartTime)
	}
}

func TestLastSegmentIgnoresTrailingPartialEntry(t *testing.T) {
	text := liveMedia + "#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:11.750000Z\n#EXTINF:6.0,\n"
	seg, ok := LastSegment(lines(text))
	if !ok || seg.URI != "seg42.ts" {
		t.Fatalf("expected last complete segment seg42.ts, got %+v", seg)
	}
}

func TestLastSegmentWithoutProgramDateTime(t *testing.T) {
	seg, ok := LastSegment([]string{"#EXTM3U", "#EXTINF:2.002,title", "chunk_7.m4s?token=abc"})
	if !ok {
		t.Fatal("expected a segment")
	}
	if seg.URI != "chunk_7.m4s?token=abc" || seg.Duration != 2.002 {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if !seg.StartTime.IsZero() {
		t.Fatalf("expected zero start time, got %v", seg.StartTime)
	}
}

func TestLastSegmentNoneFound(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"header only":     "#EXTM3U\n#EXT-X-TARGETDURATION:6\n",
		"uri without tag": "#EXTM3U\nseg1.ts\n",
		"bad duration":    "#EXTM3U\n#EXTINF:abc,\nseg1.ts\n",
		"not a segment":   "#EXTM3U\n#EXTINF:6.0,\nnotes.txt\n",
	}
	for name, text := range cases {
		if seg, ok := LastSegment(lines(text)); ok {
			t.Fatalf("%s: expected no segment, got %+v", name, seg)
		}
	}
}

func TestClassify(t *testing.T) {
	master := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720
720p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=640000
360p/index.m3u8
`
	if got := Classify(lines(master)); got != KindMaster {
		t.Fatalf("expected master, got %v", got)
	}
	if got := Classify(lines(liveMedia)); got != KindMedia {
		t.Fatalf("expected media, got %v", got)
	}
	if got := Classify([]string{"#EXTM3U"}); got != KindUnknown {
		t.Fatalf("expected unknown, got %v", got)
	}
}

func TestParseMasterNeverYieldsSegment(t *testing.T) {
	kind, _, ok := Parse([]string{"#EXTM3U", "#EXT-X-STREAM-INF:BANDWIDTH=1", "low.m3u8"})
	if kind != KindMaster || ok {
		t.Fatalf("expected master without segment, got kind=%v ok=%v", kind, ok)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	k1, s1, ok1 := Parse(lines(liveMedia))
	k2, s2, ok2 := Parse(lines(liveMedia))
	if k1 != k2 || ok1 != ok2 || s1 != s2 {
		t.Fatalf("expected identical results, got %v/%+v/%v and %v/%+v/%v", k1, s1, ok1, k2, s2, ok2)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "live.m3u8")
	if err := os.WriteFile(name, []byte(liveMedia), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	got, err := ReadFile(name)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if len(got) != 10 || got[0] != "#EXTM3U" {
		t.Fatalf("unexpected lines %q", got)
	}

	_, err = ReadFile(filepath.Join(dir, "missing.m3u8"))
	if !errors.Is(err, ErrTransientParse) {
		t.Fatalf("expected transient parse error, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}
