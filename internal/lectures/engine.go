package lectures

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nugget/lectern/internal/fetcher"
	"github.com/nugget/lectern/internal/playlist"
	"github.com/nugget/lectern/internal/store"
)

// Engine selects lectures from a caller-owned series set. The series
// slice is passed into each call rather than held by the Engine, so a
// sheet reload is just a new slice on the next call.
type Engine struct {
	cache   *playlist.Cache
	store   *store.Store
	fetcher *fetcher.Fetcher
	rng     *rand.Rand
	logger  *slog.Logger
}

// NewEngine creates a selection engine. rng may be nil, in which case
// a time-seeded source is used; tests pass a seeded one.
func NewEngine(cache *playlist.Cache, st *store.Store, f *fetcher.Fetcher, rng *rand.Rand, logger *slog.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Engine{
		cache:   cache,
		store:   st,
		fetcher: f,
		rng:     rng,
		logger:  logger,
	}
}

// SelectToWatch picks a random series with unwatched lectures and
// returns its next lecture in playlist order.
func (e *Engine) SelectToWatch(ctx context.Context, series []Series) (*Selection, error) {
	var eligible []Series
	for _, s := range series {
		if s.IsPlaylist && s.Watched != nil && s.Total != nil && *s.Watched < *s.Total {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: nothing unwatched (or progress unknown)", ErrNoEligibleSeries)
	}

	chosen := eligible[e.rng.IntN(len(eligible))]

	entries, err := e.cache.Resolve(ctx, chosen.PlaylistURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fetcher.ErrPlaylistUnavailable, err)
	}

	next := *chosen.Watched
	if next >= len(entries) {
		return nil, fmt.Errorf("%w: %q watched=%d but playlist has %d videos",
			ErrIndexOutOfSync, chosen.Title, next, len(entries))
	}

	entry := entries[next]
	e.logger.Info("selected lecture to watch",
		"series", chosen.Title,
		"index", next,
		"title", entry.Title,
	)

	return &Selection{
		SeriesTitle: chosen.Title,
		PlaylistURL: chosen.PlaylistURL,
		VideoTitle:  entry.Title,
		VideoURL:    entry.URL,
		Index:       next,
		Message: fmt.Sprintf("Selected lecture %q from %q. This is video #%d.",
			entry.Title, chosen.Title, next+1),
	}, nil
}

// SelectForReview picks a random already-watched lecture from a random
// series and attaches any stored subtitle text. A missing subtitle
// record is not an error; SubtitlesStored is false.
func (e *Engine) SelectForReview(ctx context.Context, series []Series) (*Selection, error) {
	var eligible []Series
	for _, s := range series {
		if s.IsPlaylist && s.Watched != nil && *s.Watched > 1 {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: no series with watched lectures", ErrNoEligibleSeries)
	}

	chosen := eligible[e.rng.IntN(len(eligible))]

	entries, err := e.cache.Resolve(ctx, chosen.PlaylistURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fetcher.ErrPlaylistUnavailable, err)
	}

	// The sheet can claim more watched videos than the playlist holds.
	reviewable := min(*chosen.Watched, len(entries))
	if reviewable == 0 {
		return nil, fmt.Errorf("%w: %q has no videos to review", ErrNothingToReview, chosen.Title)
	}

	idx := e.rng.IntN(reviewable)
	entry := entries[idx]

	text, stored, err := e.store.Text(entry.URL)
	if err != nil {
		return nil, fmt.Errorf("look up stored subtitles: %w", err)
	}

	e.logger.Info("selected lecture for review",
		"series", chosen.Title,
		"index", idx,
		"title", entry.Title,
		"subtitles_stored", stored,
	)

	return &Selection{
		SeriesTitle:     chosen.Title,
		PlaylistURL:     chosen.PlaylistURL,
		VideoTitle:      entry.Title,
		VideoURL:        entry.URL,
		Index:           idx,
		Subtitles:       text,
		SubtitlesStored: stored,
		Message: fmt.Sprintf("Selected for review: %q from %q. Video #%d.",
			entry.Title, chosen.Title, idx+1),
	}, nil
}

// BulkDownload fetches subtitles for every watched video across all
// playlist series. Per-item failures are counted and reported, never
// propagated; the returned Report is always complete.
func (e *Engine) BulkDownload(ctx context.Context, series []Series) *Report {
	report := &Report{}

	processed := 0
	for _, s := range series {
		if !s.IsPlaylist || s.Watched == nil || *s.Watched <= 0 {
			continue
		}
		processed++
		watched := *s.Watched
		report.addMessage("Processing series: %s (%d watched videos)", s.Title, watched)

		entries, err := e.cache.Resolve(ctx, s.PlaylistURL)
		if err != nil {
			// The whole series is unreachable; count every watched video
			// as failed and move on.
			e.logger.Warn("bulk download: playlist resolution failed",
				"series", s.Title, "error", err)
			report.Failed += watched
			report.addMessage("  Could not fetch video list for %s. Skipping.", s.Title)
			continue
		}

		for idx := 0; idx < min(watched, len(entries)); idx++ {
			entry := entries[idx]

			if entry.URL == "" {
				report.Failed++
				report.addMessage("    Skipping video with no URL: %s", entry.Title)
				continue
			}

			exists, err := e.store.Exists(entry.URL)
			if err != nil {
				report.Failed++
				report.addMessage("    Store lookup failed for %s: %v", entry.Title, err)
				continue
			}
			if exists {
				report.Skipped++
				report.addMessage("    Subtitles already stored for %s. Skipping.", entry.Title)
				continue
			}

			res, err := e.fetcher.FetchAndStore(ctx, s.Title, s.PlaylistURL, idx)
			switch {
			case err != nil:
				report.Failed++
				report.addMessage("    Failed to download subtitles for %s: %v", entry.Title, err)
			case res.AlreadyStored:
				report.Skipped++
				report.addMessage("    Subtitles already stored for %s. Skipping.", entry.Title)
			default:
				report.Downloaded++
				report.addMessage("    Downloaded subtitles for %s.", entry.Title)
			}
		}
	}

	if processed == 0 {
		report.addMessage("No series with watched videos found.")
	}
	report.addMessage("Bulk download summary -- downloaded: %d, skipped: %d, failed: %d",
		report.Downloaded, report.Skipped, report.Failed)

	e.logger.Info("bulk download finished",
		"downloaded", report.Downloaded,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)

	return report
}
