// Package fetcher orchestrates subtitle acquisition: it resolves the
// video through the playlist cache, walks a language-priority list
// invoking yt-dlp into a per-call scratch directory, cleans the raw
// VTT, and persists the result.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nugget/lectern/internal/playlist"
	"github.com/nugget/lectern/internal/store"
	"github.com/nugget/lectern/internal/subtitle"
	"github.com/nugget/lectern/internal/ytdlp"
)

// Failure classes surfaced to callers. BulkDownload folds these into
// its failure counter; single-item callers branch on them.
var (
	// ErrPlaylistUnavailable indicates the playlist could not be
	// resolved, or the requested index is out of range.
	ErrPlaylistUnavailable = errors.New("playlist unavailable")

	// ErrNoVideoURL indicates the resolved entry carries no usable URL.
	ErrNoVideoURL = errors.New("video has no URL")

	// ErrNoSubtitles indicates no configured language produced a
	// subtitle track.
	ErrNoSubtitles = errors.New("no subtitles available")
)

// Result is the outcome of a successful FetchAndStore call.
type Result struct {
	Record *store.Record

	// AlreadyStored is true when the record predates this call and no
	// download was attempted.
	AlreadyStored bool
}

// Fetcher downloads, cleans, and stores subtitle tracks.
type Fetcher struct {
	cache     *playlist.Cache
	store     *store.Store
	runner    ytdlp.Runner
	languages []string
	logger    *slog.Logger
}

// New creates a Fetcher. languages is the subtitle language priority
// order; when empty it defaults to en, en-US, en-GB.
func New(cache *playlist.Cache, st *store.Store, runner ytdlp.Runner, languages []string, logger *slog.Logger) *Fetcher {
	if len(languages) == 0 {
		languages = []string{"en", "en-US", "en-GB"}
	}
	return &Fetcher{
		cache:     cache,
		store:     st,
		runner:    runner,
		languages: languages,
		logger:    logger,
	}
}

// FetchAndStore downloads and persists the subtitles for the video at
// index within the playlist, unless a record for its URL already
// exists, in which case that record is returned untouched. Subtitle
// text is cleaned before it is written; the stored text is what
// callers display.
func (f *Fetcher) FetchAndStore(ctx context.Context, seriesTitle, playlistURL string, index int) (*Result, error) {
	entries, err := f.cache.Resolve(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlaylistUnavailable, err)
	}
	if index < 0 || index >= len(entries) {
		return nil, fmt.Errorf("%w: index %d outside playlist of %d videos", ErrPlaylistUnavailable, index, len(entries))
	}

	entry := entries[index]
	if entry.URL == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoVideoURL, entry.Title)
	}

	// Idempotent short-circuit: a stored record means no tool run.
	if rec, found, err := f.store.Get(entry.URL); err != nil {
		return nil, fmt.Errorf("check existing subtitle: %w", err)
	} else if found {
		return &Result{Record: rec, AlreadyStored: true}, nil
	}

	raw, err := f.download(ctx, entry.URL)
	if err != nil {
		return nil, err
	}

	rec := &store.Record{
		SeriesTitle:   seriesTitle,
		PlaylistIndex: index,
		VideoTitle:    entry.Title,
		VideoURL:      entry.URL,
		SubtitlesText: subtitle.Clean(raw),
	}
	if err := f.store.Upsert(rec); err != nil {
		return nil, fmt.Errorf("store subtitle for %q: %w", entry.Title, err)
	}

	return &Result{Record: rec}, nil
}

// download walks the language priority list until one attempt leaves a
// subtitle artifact in the scratch directory, and returns its raw
// contents. The scratch directory is removed on every exit path.
func (f *Fetcher) download(ctx context.Context, videoURL string) (string, error) {
	if !ytdlp.IsVideoURL(videoURL) {
		return "", fmt.Errorf("%w: %q is not a video URL", ErrNoVideoURL, videoURL)
	}
	videoID := ytdlp.VideoID(videoURL)
	if videoID == "" {
		return "", fmt.Errorf("%w: no video ID in %q", ErrNoVideoURL, videoURL)
	}

	scratch, err := os.MkdirTemp("", "lectern-subs-*")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	logger := f.logger.With("request_id", uuid.NewString(), "video_id", videoID)

	for _, lang := range f.languages {
		if err := f.runner.DownloadSubtitle(ctx, videoURL, videoID, lang, scratch); err != nil {
			return "", fmt.Errorf("download subtitles (%s): %w", lang, err)
		}

		artifact := filepath.Join(scratch, fmt.Sprintf("%s.%s.vtt", videoID, lang))
		raw, err := os.ReadFile(artifact)
		if err != nil {
			if !os.IsNotExist(err) {
				return "", fmt.Errorf("read subtitle artifact: %w", err)
			}
			logger.Debug("no subtitle artifact for language", "lang", lang)
			continue
		}

		logger.Info("downloaded subtitles", "lang", lang, "bytes", len(raw))
		return string(raw), nil
	}

	return "", fmt.Errorf("%w for %s (tried %v)", ErrNoSubtitles, videoURL, f.languages)
}
