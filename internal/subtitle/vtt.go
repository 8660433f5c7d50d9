// Package subtitle cleans WebVTT caption files into plain text.
// It strips headers, timing cues, styling annotations, and inline tags,
// and deduplicates the rolling-caption repetition that auto-generated
// YouTube subtitle tracks produce.
package subtitle

import (
	"regexp"
	"strings"
)

// timingLineRe matches VTT timing cues like "00:00:01.234 --> 00:00:03.456"
// with optional position/alignment metadata after the timestamps.
var timingLineRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}\.\d{3}`)

// headerLineRe matches the WEBVTT file header line.
var headerLineRe = regexp.MustCompile(`(?i)^webvtt\b`)

// noteLineRe matches NOTE comment blocks.
var noteLineRe = regexp.MustCompile(`(?i)^note\b`)

// metadataLineRe matches header-block metadata lines ("Kind: captions",
// "Language: en") that YouTube emits after the WEBVTT line.
var metadataLineRe = regexp.MustCompile(`(?i)^(kind|language):`)

// inlineTagRe matches inline markup tags commonly found in VTT files
// (<c>, <c.colorE5E5E5>, <i>, <b>, timestamps like <00:00:01.320>).
var inlineTagRe = regexp.MustCompile(`<[^>]+>`)

// Clean takes raw VTT subtitle content and produces clean, readable
// plain text: one line per cue, cue fragments joined with single
// spaces, inline tags removed.
//
// Adjacent cues are deduplicated with a substring rule: a cue that is
// contained in the cue immediately following it is dropped. This
// removes the rolling-caption pattern of auto-generated tracks, where
// each cue repeats the previous one plus a few new words. The rule is
// a heuristic; a legitimately short line can be dropped if the next
// cue happens to contain it verbatim.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	var cues []string
	var fragments []string

	flush := func() {
		if len(fragments) > 0 {
			cues = append(cues, strings.Join(fragments, " "))
			fragments = fragments[:0]
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		// Blank lines, the file header, comments, and timing cues all
		// terminate the cue text accumulated so far.
		if line == "" || headerLineRe.MatchString(line) ||
			noteLineRe.MatchString(line) || metadataLineRe.MatchString(line) ||
			timingLineRe.MatchString(line) {
			flush()
			continue
		}

		// Styling/position annotations carry no spoken text. Skip them
		// without flushing: they can appear between fragments of one cue.
		if isStylingLine(line) {
			continue
		}

		if text := strings.TrimSpace(inlineTagRe.ReplaceAllString(line, "")); text != "" {
			fragments = append(fragments, text)
		}
	}
	flush()

	return strings.TrimSpace(strings.Join(dedupeRolling(cues), "\n"))
}

// isStylingLine reports whether line is a pure cue-settings line such as
// "align:start position:0%". Timing arrows never reach here; the caller
// handles those first.
func isStylingLine(line string) bool {
	if strings.Contains(line, "-->") {
		return false
	}
	if strings.HasPrefix(line, "<c>") || strings.HasPrefix(line, "</c>") {
		return true
	}
	return strings.Contains(line, ":") && strings.Contains(line, "%")
}

// dedupeRolling drops each cue that is a substring of the cue
// immediately following it. The last cue is always kept.
func dedupeRolling(cues []string) []string {
	var out []string
	for i, cue := range cues {
		if i < len(cues)-1 && strings.Contains(cues[i+1], cue) {
			continue
		}
		out = append(out, cue)
	}
	return out
}
