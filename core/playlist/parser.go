package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	tagProgramDateTime = "#EXT-X-PROGRAM-DATE-TIME:"
	tagDuration        = "#EXTINF:"
	tagTargetDuration  = "#EXT-X-TARGETDURATION:"
	tagMediaSequence   = "#EXT-X-MEDIA-SEQUENCE:"
	tagStreamInf       = "#EXT-X-STREAM-INF:"
	tagIFrameStreamInf = "#EXT-X-I-FRAME-STREAM-INF:"
	tagMedia           = "#EXT-X-MEDIA:"
)

// ErrTransientParse marks a manifest that could not be read, usually because a writer
// was replacing it. Callers retry on the next change.
var ErrTransientParse = errors.New("playlist: transient parse failure")

// segmentSuffixes are the media chunk extensions that terminate a segment entry.
var segmentSuffixes = []string{".ts", ".m4s", ".aac", ".mp4"}

// Kind classifies a manifest.
type Kind int

const (
	KindUnknown Kind = iota
	KindMaster
	KindMedia
)

func (k Kind) String() string {
	switch k {
	case KindMaster:
		return "master"
	case KindMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Segment is one media chunk referenced by a media playlist.
type Segment struct {
	URI       string
	StartTime time.Time // UTC; zero when the playlist carries no program date-time
	Duration  float64   // seconds
}

// Classify reports whether lines describe a master or a media playlist.
func Classify(lines []string) Kind {
	var hasVariant, hasMedia bool
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, tagDuration),
			strings.HasPrefix(line, tagTargetDuration),
			strings.HasPrefix(line, tagMediaSequence):
			hasMedia = true
		case strings.HasPrefix(line, tagStreamInf),
			strings.HasPrefix(line, tagIFrameStreamInf),
			strings.HasPrefix(line, tagMedia):
			hasVariant = true
		}
	}
	switch {
	case hasMedia:
		return KindMedia
	case hasVariant:
		return KindMaster
	default:
		return KindUnknown
	}
}

// LastSegment returns the most recently appended complete segment. A segment is complete
// once its URI line follows an #EXTINF tag; a trailing tag with no URI (a write in
// progress) is ignored. Segments without their own program date-time inherit one
// extrapolated from the previous segment.
func LastSegment(lines []string) (Segment, bool) {
	var (
		last        Segment
		found       bool
		clock       time.Time
		duration    float64
		hasDuration bool
	)

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, tagProgramDateTime):
			if ts, err := parseProgramDateTime(strings.TrimPrefix(line, tagProgramDateTime)); err == nil {
				clock = ts
			}
		case strings.HasPrefix(line, tagDuration):
			d, err := parseDuration(strings.TrimPrefix(line, tagDuration))
			if err != nil {
				hasDuration = false
				continue
			}
			duration, hasDuration = d, true
		case strings.HasPrefix(line, "#"):
			continue
		case hasDuration && isSegmentURI(line):
			last = Segment{URI: line, StartTime: clock, Duration: duration}
			found = true
			if !clock.IsZero() {
				clock = clock.Add(time.Duration(duration * float64(time.Second)))
			}
			hasDuration = false
		}
	}
	return last, found
}

// Parse classifies lines and, for media playlists, extracts the last segment.
// The same input always yields the same output.
func Parse(lines []string) (Kind, Segment, bool) {
	kind := Classify(lines)
	if kind == KindMaster {
		return kind, Segment{}, false
	}
	seg, ok := LastSegment(lines)
	return kind, seg, ok
}

// ReadFile reads a manifest as lines. Any failure is wrapped in ErrTransientParse.
func ReadFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransientParse, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransientParse, err)
	}
	return lines, nil
}

func parseProgramDateTime(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// parseDuration reads "<seconds>[,<title>]".
func parseDuration(value string) (float64, error) {
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}

func isSegmentURI(line string) bool {
	if i := strings.IndexAny(line, "?#"); i >= 0 {
		line = line[:i]
	}
	ext := strings.ToLower(path.Ext(line))
	for _, s := range segmentSuffixes {
		if ext == s {
			return true
		}
	}
	return false
}
