package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/lectern/internal/playlist"
	"github.com/nugget/lectern/internal/store"
	"github.com/nugget/lectern/internal/ytdlp"
)

const (
	testPlaylistURL = "https://www.youtube.com/playlist?list=PLtest"
	testVideoURL    = "https://www.youtube.com/watch?v=vid0"
)

// fakeRunner serves a canned playlist and writes subtitle artifacts
// only for the languages listed in subsByLang.
type fakeRunner struct {
	entries       []ytdlp.Entry
	listErr       error
	subsByLang    map[string]string
	downloadCalls []string // languages attempted, in order
	lastDestDir   string
}

func (f *fakeRunner) ListPlaylist(_ context.Context, _ string) ([]ytdlp.Entry, error) {
	return f.entries, f.listErr
}

func (f *fakeRunner) DownloadSubtitle(_ context.Context, _, videoID, lang, destDir string) error {
	f.downloadCalls = append(f.downloadCalls, lang)
	f.lastDestDir = destDir
	if raw, ok := f.subsByLang[lang]; ok {
		name := fmt.Sprintf("%s.%s.vtt", videoID, lang)
		return os.WriteFile(filepath.Join(destDir, name), []byte(raw), 0o644)
	}
	return nil
}

func (f *fakeRunner) Version(_ context.Context) (string, error) {
	return "test", nil
}

func newTestFetcher(t *testing.T, runner *fakeRunner) (*Fetcher, *store.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	st, err := store.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cache := playlist.New(runner, logger)
	return New(cache, st, runner, nil, logger), st
}

func TestFetchAndStore_DownloadsAndCleans(t *testing.T) {
	raw := "WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nHello world\n\n00:00:03.000 --> 00:00:05.000\nHello world, how are you\n"
	runner := &fakeRunner{
		entries:    []ytdlp.Entry{{Title: "Lecture 1", URL: testVideoURL}},
		subsByLang: map[string]string{"en": raw},
	}
	f, st := newTestFetcher(t, runner)

	res, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 0)
	if err != nil {
		t.Fatalf("FetchAndStore: %v", err)
	}
	if res.AlreadyStored {
		t.Error("AlreadyStored = true on first download")
	}
	if res.Record.SubtitlesText != "Hello world, how are you" {
		t.Errorf("stored text = %q, want cleaned text", res.Record.SubtitlesText)
	}

	// The record is persisted, normalized.
	text, found, err := st.Text(testVideoURL)
	if err != nil || !found {
		t.Fatalf("Text = %v, %v", found, err)
	}
	if text != "Hello world, how are you" {
		t.Errorf("persisted text = %q", text)
	}
}

func TestFetchAndStore_ShortCircuitsWhenStored(t *testing.T) {
	runner := &fakeRunner{
		entries: []ytdlp.Entry{{Title: "Lecture 1", URL: testVideoURL}},
	}
	f, st := newTestFetcher(t, runner)

	if err := st.Upsert(&store.Record{
		SeriesTitle:   "Algorithms",
		PlaylistIndex: 0,
		VideoTitle:    "Lecture 1",
		VideoURL:      testVideoURL,
		SubtitlesText: "already here",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	res, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 0)
	if err != nil {
		t.Fatalf("FetchAndStore: %v", err)
	}
	if !res.AlreadyStored {
		t.Error("AlreadyStored = false for existing record")
	}
	if res.Record.SubtitlesText != "already here" {
		t.Errorf("record text = %q", res.Record.SubtitlesText)
	}
	if len(runner.downloadCalls) != 0 {
		t.Errorf("download attempted %d times for stored record, want 0", len(runner.downloadCalls))
	}
}

func TestFetchAndStore_LanguageFallback(t *testing.T) {
	raw := "WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nBritish text\n"
	runner := &fakeRunner{
		entries:    []ytdlp.Entry{{Title: "Lecture 1", URL: testVideoURL}},
		subsByLang: map[string]string{"en-GB": raw},
	}
	f, _ := newTestFetcher(t, runner)

	res, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 0)
	if err != nil {
		t.Fatalf("FetchAndStore: %v", err)
	}

	want := []string{"en", "en-US", "en-GB"}
	if len(runner.downloadCalls) != len(want) {
		t.Fatalf("download attempts = %v, want %v", runner.downloadCalls, want)
	}
	for i := range want {
		if runner.downloadCalls[i] != want[i] {
			t.Errorf("attempt %d = %q, want %q", i, runner.downloadCalls[i], want[i])
		}
	}
	if res.Record.SubtitlesText != "British text" {
		t.Errorf("stored text = %q", res.Record.SubtitlesText)
	}
}

func TestFetchAndStore_NoSubtitlesInAnyLanguage(t *testing.T) {
	runner := &fakeRunner{
		entries: []ytdlp.Entry{{Title: "Lecture 1", URL: testVideoURL}},
	}
	f, _ := newTestFetcher(t, runner)

	_, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 0)
	if !errors.Is(err, ErrNoSubtitles) {
		t.Fatalf("err = %v, want ErrNoSubtitles", err)
	}
	if len(runner.downloadCalls) != 3 {
		t.Errorf("download attempts = %d, want 3", len(runner.downloadCalls))
	}
}

func TestFetchAndStore_IndexOutOfRange(t *testing.T) {
	runner := &fakeRunner{
		entries: []ytdlp.Entry{{Title: "Lecture 1", URL: testVideoURL}},
	}
	f, _ := newTestFetcher(t, runner)

	_, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 5)
	if !errors.Is(err, ErrPlaylistUnavailable) {
		t.Fatalf("err = %v, want ErrPlaylistUnavailable", err)
	}
}

func TestFetchAndStore_ResolutionFailure(t *testing.T) {
	runner := &fakeRunner{listErr: errors.New("tool exploded")}
	f, _ := newTestFetcher(t, runner)

	_, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 0)
	if !errors.Is(err, ErrPlaylistUnavailable) {
		t.Fatalf("err = %v, want ErrPlaylistUnavailable", err)
	}
}

func TestFetchAndStore_EntryWithoutURL(t *testing.T) {
	runner := &fakeRunner{
		entries: []ytdlp.Entry{{Title: "Private video"}},
	}
	f, _ := newTestFetcher(t, runner)

	_, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 0)
	if !errors.Is(err, ErrNoVideoURL) {
		t.Fatalf("err = %v, want ErrNoVideoURL", err)
	}
}

func TestFetchAndStore_ScratchDirRemoved(t *testing.T) {
	raw := "WEBVTT\n\n00:00:01.000 --> 00:00:03.000\ntext\n"
	runner := &fakeRunner{
		entries:    []ytdlp.Entry{{Title: "Lecture 1", URL: testVideoURL}},
		subsByLang: map[string]string{"en": raw},
	}
	f, _ := newTestFetcher(t, runner)

	if _, err := f.FetchAndStore(context.Background(), "Algorithms", testPlaylistURL, 0); err != nil {
		t.Fatalf("FetchAndStore: %v", err)
	}

	if runner.lastDestDir == "" {
		t.Fatal("runner never saw a scratch dir")
	}
	if _, err := os.Stat(runner.lastDestDir); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s still exists after fetch", runner.lastDestDir)
	}
}
