// Package web implements the JSON HTTP API over lecture selection and
// subtitle download.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nugget/lectern/internal/buildinfo"
	"github.com/nugget/lectern/internal/fetcher"
	"github.com/nugget/lectern/internal/lectures"
	"github.com/nugget/lectern/internal/playlist"
	"github.com/nugget/lectern/internal/sheet"
	"github.com/nugget/lectern/internal/store"
	"github.com/nugget/lectern/internal/ytdlp"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// SheetSource tells the server where the lecture sheet lives.
type SheetSource struct {
	// CSVPath is the local CSV file read on every reload.
	CSVPath string
	// CSVURL, when non-empty, is fetched to CSVPath before reading.
	CSVURL string
}

// Server is the HTTP API server. It owns the current series set; a
// reload swaps it and clears the playlist cache in one step.
type Server struct {
	address string
	port    int

	engine  *lectures.Engine
	fetcher *fetcher.Fetcher
	cache   *playlist.Cache
	store   *store.Store
	runner  ytdlp.Runner
	source  SheetSource
	httpc   *http.Client
	logger  *slog.Logger

	server *http.Server

	mu     sync.RWMutex
	series []lectures.Series
}

// NewServer creates the API server. httpc is the client used for sheet
// fetches; pass nil to disable remote fetching regardless of CSVURL.
func NewServer(address string, port int, engine *lectures.Engine, f *fetcher.Fetcher,
	cache *playlist.Cache, st *store.Store, runner ytdlp.Runner,
	source SheetSource, httpc *http.Client, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		engine:  engine,
		fetcher: f,
		cache:   cache,
		store:   st,
		runner:  runner,
		source:  source,
		httpc:   httpc,
		logger:  logger,
	}
}

// Reload re-reads the lecture sheet (fetching it first when a URL is
// configured), swaps the in-memory series set, and clears the playlist
// cache so nothing resolved for the old data survives.
func (s *Server) Reload(ctx context.Context) (int, error) {
	if s.source.CSVURL != "" && s.httpc != nil {
		if err := sheet.Fetch(ctx, s.httpc, s.source.CSVURL, s.source.CSVPath); err != nil {
			return 0, err
		}
	}

	series, err := sheet.Load(s.source.CSVPath)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.series = series
	s.mu.Unlock()
	s.cache.Clear()

	s.logger.Info("lecture sheet loaded", "series", len(series))
	return len(series), nil
}

// currentSeries returns a snapshot of the series set for one operation.
func (s *Server) currentSeries() []lectures.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series
}

// Handler returns the API routes. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/watch", s.handleWatch)
	mux.HandleFunc("POST /api/review", s.handleReview)
	mux.HandleFunc("POST /api/subtitles", s.handleSubtitles)
	mux.HandleFunc("POST /api/bulk", s.handleBulk)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	return mux
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.address, s.port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	s.logger.Info("API server listening", "addr", s.server.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	series := s.currentSeries()
	playlists := 0
	for _, entry := range series {
		if entry.IsPlaylist {
			playlists++
		}
	}

	stored, err := s.store.Count()
	if err != nil {
		s.logger.Warn("status: store count failed", "error", err)
	}

	version, verr := s.runner.Version(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"series":           len(series),
		"playlist_series":  playlists,
		"subtitles_stored": stored,
		"yt_dlp_ready":     verr == nil,
		"yt_dlp_version":   version,
		"build":            buildinfo.Info(),
	}, s.logger)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	sel, err := s.engine.SelectToWatch(r.Context(), s.currentSeries())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel, s.logger)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	sel, err := s.engine.SelectForReview(r.Context(), s.currentSeries())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel, s.logger)
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SeriesTitle string `json:"series_title"`
		PlaylistURL string `json:"playlist_url"`
		Index       int    `json:"playlist_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"}, s.logger)
		return
	}

	res, err := s.fetcher.FetchAndStore(r.Context(), req.SeriesTitle, req.PlaylistURL, req.Index)
	if err != nil {
		s.writeError(w, err)
		return
	}

	message := fmt.Sprintf("Downloaded and stored subtitles for %q.", res.Record.VideoTitle)
	if res.AlreadyStored {
		message = fmt.Sprintf("Subtitles for %q already exist.", res.Record.VideoTitle)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        message,
		"already_stored": res.AlreadyStored,
		"video_title":    res.Record.VideoTitle,
		"video_url":      res.Record.VideoURL,
		"subtitles":      res.Record.SubtitlesText,
	}, s.logger)
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	report := s.engine.BulkDownload(r.Context(), s.currentSeries())
	writeJSON(w, http.StatusOK, report, s.logger)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.Reload(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()}, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "lecture sheet reloaded",
		"series":  n,
	}, s.logger)
}

// writeError maps domain failures to HTTP statuses. Empty selections
// are 404s, bad references are 400s, and upstream tool trouble is a
// 502; anything unrecognized is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lectures.ErrNoEligibleSeries),
		errors.Is(err, lectures.ErrNothingToReview),
		errors.Is(err, fetcher.ErrNoSubtitles):
		status = http.StatusNotFound
	case errors.Is(err, playlist.ErrInvalidURL),
		errors.Is(err, fetcher.ErrNoVideoURL):
		status = http.StatusBadRequest
	case errors.Is(err, lectures.ErrIndexOutOfSync):
		status = http.StatusConflict
	case errors.Is(err, fetcher.ErrPlaylistUnavailable),
		errors.Is(err, ytdlp.ErrInvocation),
		errors.Is(err, ytdlp.ErrParse):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	} else {
		s.logger.Warn("request failed", "error", err, "status", status)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()}, s.logger)
}
