// Package lectures implements lecture selection over a set of tracked
// series: pick the next unwatched lecture, pick a random watched one
// for review, or bulk-download subtitles for everything watched.
package lectures

import (
	"errors"
	"fmt"
)

// Series is one tracked lecture series with its watch progress, as
// loaded from the lecture sheet. Watched and Total are nil when the
// sheet cell was empty or non-numeric.
type Series struct {
	Title       string
	PlaylistURL string
	IsPlaylist  bool
	Watched     *int
	Total       *int
}

// Selection describes a chosen lecture. It is never persisted.
type Selection struct {
	SeriesTitle string `json:"series_title"`
	PlaylistURL string `json:"playlist_url"`
	VideoTitle  string `json:"video_title"`
	VideoURL    string `json:"video_url"`
	Index       int    `json:"playlist_index"`

	// Subtitles carries stored subtitle text for review selections.
	// SubtitlesStored distinguishes "not yet downloaded" from empty.
	Subtitles       string `json:"subtitles,omitempty"`
	SubtitlesStored bool   `json:"subtitles_stored"`

	Message string `json:"message"`
}

// Report summarizes a bulk download run.
type Report struct {
	Downloaded int      `json:"downloaded"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Messages   []string `json:"messages"`
}

func (r *Report) addMessage(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Selection failure classes.
var (
	// ErrNoEligibleSeries indicates no series passed the operation's
	// eligibility filter.
	ErrNoEligibleSeries = errors.New("no eligible series")

	// ErrIndexOutOfSync indicates the sheet's watched count points past
	// the end of the resolved playlist.
	ErrIndexOutOfSync = errors.New("watched count out of sync with playlist")

	// ErrNothingToReview indicates the chosen series has no reviewable
	// videos once the playlist length is taken into account.
	ErrNothingToReview = errors.New("nothing to review")
)
