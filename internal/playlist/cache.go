// Package playlist resolves YouTube playlists to their video entries
// and caches the results for the life of the process. The cache is
// cleared wholesale whenever the lecture sheet is reloaded.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nugget/lectern/internal/ytdlp"
)

// ErrInvalidURL indicates the URL does not look like a YouTube playlist.
var ErrInvalidURL = errors.New("not a YouTube playlist URL")

const urlMarker = "youtube.com/playlist?list="

// IsPlaylistURL reports whether raw has the YouTube playlist URL shape.
func IsPlaylistURL(raw string) bool {
	return strings.Contains(raw, urlMarker)
}

// Lister is the one yt-dlp capability the cache needs.
type Lister interface {
	ListPlaylist(ctx context.Context, playlistURL string) ([]ytdlp.Entry, error)
}

// Cache maps playlist URLs to their resolved entries. Successful
// resolutions are cached for the life of the process; failures are
// never memoized, so a retry always re-invokes the listing tool.
type Cache struct {
	lister Lister
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string][]ytdlp.Entry
}

// New creates an empty playlist cache backed by lister.
func New(lister Lister, logger *slog.Logger) *Cache {
	return &Cache{
		lister:  lister,
		logger:  logger,
		entries: make(map[string][]ytdlp.Entry),
	}
}

// Resolve returns the playlist's entries, from cache when possible.
// The returned slice is shared; callers must treat it as read-only.
func (c *Cache) Resolve(ctx context.Context, playlistURL string) ([]ytdlp.Entry, error) {
	if !IsPlaylistURL(playlistURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, playlistURL)
	}

	c.mu.Lock()
	if cached, ok := c.entries[playlistURL]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	entries, err := c.lister.ListPlaylist(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("resolve playlist %q: %w", playlistURL, err)
	}

	c.logger.Info("resolved playlist",
		"url", playlistURL,
		"videos", len(entries),
	)

	c.mu.Lock()
	c.entries[playlistURL] = entries
	c.mu.Unlock()

	return entries, nil
}

// Clear empties the entire cache. Called when the lecture sheet is
// reloaded, so stale playlist contents don't outlive the data they
// were resolved for.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]ytdlp.Entry)
}
