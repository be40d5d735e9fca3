package core

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"
)

// DurationMethod identifies which stage of the fallback chain produced a
// duration value. Callers may log it; it has no effect on correctness.
type DurationMethod string

const (
	MethodParsed    DurationMethod = "format_parsed"
	MethodEstimated DurationMethod = "size_estimated"
	MethodDefault   DurationMethod = "default"
)

const (
	// DefaultDurationSeconds is returned when nothing else can be computed.
	DefaultDurationSeconds = 180

	maxPlausibleSeconds = 86400 // 24h; beyond this a parsed value is suspect
	maxEstimateSeconds  = 7200
	webmMaxDurationMs   = 86_400_000
)

// DurationResult is the outcome of a duration probe.
type DurationResult struct {
	Seconds    int
	Method     DurationMethod
	Suspicious bool // parsed value outside [1, 24h]; kept, but worth logging
}

// MediaHints carries what the caller knows about the buffer without parsing it.
type MediaHints struct {
	MimeType string
	Filename string
	// TotalSize is the declared size of the whole file, which may exceed
	// len(buffer) when only a prefix was fetched.
	TotalSize int64
}

// durationParser is one strategy in the fallback chain. It reports
// (0, false) when it cannot produce a positive duration, which advances
// the chain to the next strategy.
type durationParser interface {
	tryExtract(buf []byte, hints MediaHints) (seconds int, ok bool)
}

// DurationProbe extracts a playback duration from a video buffer prefix.
// It never fails outward: the chain falls through container parsing to a
// bitrate-based size estimate and finally a fixed default.
type DurationProbe struct {
	parsers []durationParser
}

// NewDurationProbe builds the standard chain: MP4 mvhd scan, WebM EBML
// Duration scan, size-based estimate.
func NewDurationProbe() *DurationProbe {
	return &DurationProbe{
		parsers: []durationParser{
			mp4Parser{},
			webmParser{},
			sizeEstimator{Bitrates: DefaultBitrates(), Fallback: defaultBitrate},
		},
	}
}

// Extract runs the fallback chain and always returns a non-negative duration.
func (p *DurationProbe) Extract(buf []byte, hints MediaHints) DurationResult {
	for _, parser := range p.parsers {
		secs, ok := parser.tryExtract(buf, hints)
		if !ok || secs <= 0 {
			continue
		}
		method := MethodParsed
		if _, isEstimate := parser.(sizeEstimator); isEstimate {
			method = MethodEstimated
		}
		return DurationResult{
			Seconds:    secs,
			Method:     method,
			Suspicious: method == MethodParsed && secs > maxPlausibleSeconds,
		}
	}
	return DurationResult{Seconds: DefaultDurationSeconds, Method: MethodDefault}
}

// --- MP4 ---

// mp4Parser scans for a literal "mvhd" box tag. A match only counts when the
// 4 bytes preceding the tag decode as a plausible big-endian box size (at
// least 108, the fixed size of a version-0 movie header, and no larger than
// the bytes remaining in the buffer). That guard rejects coincidental "mvhd"
// sequences inside unrelated binary data.
type mp4Parser struct{}

var mvhdTag = []byte("mvhd")

func (mp4Parser) tryExtract(buf []byte, _ MediaHints) (int, bool) {
	const minBoxSize = 108

	for i := 4; i+4 <= len(buf); i++ {
		if buf[i] != 'm' || buf[i+1] != 'v' || buf[i+2] != 'h' || buf[i+3] != 'd' {
			continue
		}
		boxStart := i - 4
		boxSize := int64(binary.BigEndian.Uint32(buf[boxStart : boxStart+4]))
		if boxSize < minBoxSize || boxSize > int64(len(buf)-boxStart) {
			continue
		}
		if secs, ok := readMvhd(buf[i+4:]); ok {
			return secs, true
		}
	}
	return 0, false
}

// readMvhd decodes the movie header body starting at the version byte.
func readMvhd(body []byte) (int, bool) {
	if len(body) < 1 {
		return 0, false
	}
	version := body[0]

	var timeScale, duration uint64
	switch version {
	case 0:
		// version(1) + flags(3) + creation(4) + modification(4)
		if len(body) < 20 {
			return 0, false
		}
		timeScale = uint64(binary.BigEndian.Uint32(body[12:16]))
		duration = uint64(binary.BigEndian.Uint32(body[16:20]))
	case 1:
		// version(1) + flags(3) + creation(8) + modification(8)
		if len(body) < 32 {
			return 0, false
		}
		timeScale = uint64(binary.BigEndian.Uint32(body[20:24]))
		// 64-bit duration as high/low words; the high word is expected to
		// be zero for realistic media and only the low word contributes.
		duration = uint64(binary.BigEndian.Uint32(body[28:32]))
	default:
		return 0, false
	}

	if timeScale == 0 || duration == 0 {
		return 0, false
	}
	return int(math.Round(float64(duration) / float64(timeScale))), true
}

// --- WebM ---

// webmParser scans for the 2-byte EBML Duration element ID (0x44 0x89) and
// reads the following 8 bytes as a big-endian IEEE-754 double holding the
// duration in milliseconds. Only attempted when the container is identified
// as WebM by mime type or file extension.
type webmParser struct{}

func (webmParser) tryExtract(buf []byte, hints MediaHints) (int, bool) {
	if !isWebM(hints) {
		return 0, false
	}
	for i := 0; i+10 <= len(buf); i++ {
		if buf[i] != 0x44 || buf[i+1] != 0x89 {
			continue
		}
		ms := math.Float64frombits(binary.BigEndian.Uint64(buf[i+2 : i+10]))
		if ms <= 0 || ms >= webmMaxDurationMs || math.IsNaN(ms) {
			continue
		}
		return int(math.Round(ms / 1000)), true
	}
	return 0, false
}

func isWebM(hints MediaHints) bool {
	if strings.Contains(strings.ToLower(hints.MimeType), "webm") {
		return true
	}
	return strings.EqualFold(filepath.Ext(hints.Filename), ".webm")
}

// --- Size estimate ---

const defaultBitrate = 3_000_000 // bits per second

// DefaultBitrates returns the assumed per-container bitrates used by the
// size estimator. These are rough defaults, not measured values; override
// them by constructing a sizeEstimator directly.
func DefaultBitrates() map[string]int64 {
	return map[string]int64{
		"video/mp4":       3_000_000,
		"video/quicktime": 3_000_000,
		"video/webm":      2_000_000,
		"video/x-msvideo": 4_000_000,
	}
}

// sizeEstimator guesses duration from file size and an assumed bitrate.
// Known to be very inaccurate; it exists so the chain never fails outward.
type sizeEstimator struct {
	Bitrates map[string]int64
	Fallback int64
}

func (e sizeEstimator) tryExtract(buf []byte, hints MediaHints) (int, bool) {
	size := hints.TotalSize
	if size <= 0 {
		size = int64(len(buf))
	}
	if size <= 0 {
		return 0, false
	}

	bitrate := e.Fallback
	if b, ok := e.Bitrates[strings.ToLower(hints.MimeType)]; ok {
		bitrate = b
	}
	if bitrate <= 0 {
		return 0, false
	}

	secs := int(math.Round(float64(size) * 8 / float64(bitrate)))
	if secs < 1 {
		secs = 1
	}
	if secs > maxEstimateSeconds {
		secs = maxEstimateSeconds
	}
	return secs, true
}
