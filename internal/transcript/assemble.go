// Package transcript assembles recognized speech segments into query text.
package transcript

import "strings"

// Assemble joins final recognition segments with single separating spaces.
// A trailing interim segment is appended when it adds content the finals do
// not already cover, since some recognizers end a stream before promoting
// the last interim to final.
func Assemble(finalSegments []string, interim string) string {
	segments := make([]string, 0, len(finalSegments)+1)
	for _, segment := range finalSegments {
		segments = appendSegment(segments, segment)
	}
	if interim = cleanSegment(interim); interim != "" {
		segments = appendSegment(segments, interim)
	}
	return strings.Join(segments, " ")
}

// appendSegment merges continuation segments to avoid duplicate transcript growth.
func appendSegment(segments []string, transcript string) []string {
	transcript = cleanSegment(transcript)
	if transcript == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, transcript)
	}

	last := segments[len(segments)-1]
	switch {
	case transcript == last:
		return segments
	case strings.HasPrefix(transcript, last):
		segments[len(segments)-1] = transcript
		return segments
	case strings.HasPrefix(last, transcript):
		return segments
	default:
		return append(segments, transcript)
	}
}

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}
