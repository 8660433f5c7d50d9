// Package ytdlp wraps the yt-dlp binary for playlist listing and
// subtitle download. All invocations go through the [Runner] interface
// so callers can substitute a test double without spawning a process.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
)

// Sentinel errors for the two failure classes of a tool run.
var (
	// ErrInvocation indicates yt-dlp could not be run or exited non-zero.
	ErrInvocation = errors.New("yt-dlp invocation failed")

	// ErrParse indicates yt-dlp produced output we could not decode.
	ErrParse = errors.New("yt-dlp output unparseable")
)

// Entry is one video inside a resolved playlist. URL is empty when
// yt-dlp reports neither a url nor a webpage_url for the item.
type Entry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Runner abstracts the external yt-dlp invocations.
type Runner interface {
	// ListPlaylist returns the playlist's entries in playlist order.
	ListPlaylist(ctx context.Context, playlistURL string) ([]Entry, error)

	// DownloadSubtitle requests the subtitle track for one video in the
	// given language, writing the artifact {videoID}.{lang}.vtt into
	// destDir. A run that produces no artifact is not an error; the
	// caller checks for the file.
	DownloadSubtitle(ctx context.Context, videoURL, videoID, lang, destDir string) error

	// Version reports the installed yt-dlp version.
	Version(ctx context.Context) (string, error)
}

// Config holds settings for the yt-dlp client.
type Config struct {
	// Path is the path to the yt-dlp binary. If empty, the binary is
	// located via exec.LookPath.
	Path string

	// CookiesFile is an optional path to a Netscape-format cookie file
	// for accessing auth-required content.
	CookiesFile string
}

// Client runs the real yt-dlp binary. It implements [Runner].
type Client struct {
	cfg    Config
	logger *slog.Logger
}

var _ Runner = (*Client)(nil)

// New creates a yt-dlp client. The binary path is resolved via
// Config.Path or exec.LookPath.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Path == "" {
		if p, err := exec.LookPath("yt-dlp"); err == nil {
			cfg.Path = p
		}
	}
	return &Client{cfg: cfg, logger: logger}
}

// ListPlaylist runs yt-dlp in flat-playlist mode and parses one JSON
// object per stdout line into an [Entry].
func (c *Client) ListPlaylist(ctx context.Context, playlistURL string) ([]Entry, error) {
	stdout, err := c.run(ctx, "-j", "--flat-playlist", "--no-warnings", playlistURL)
	if err != nil {
		return nil, err
	}
	return parsePlaylistLines(stdout)
}

// DownloadSubtitle invokes yt-dlp with --skip-download and subtitle
// flags. yt-dlp exits non-zero for some videos that simply have no
// subtitles, so a non-zero exit is logged and swallowed; the caller
// decides based on whether the artifact file appeared.
func (c *Client) DownloadSubtitle(ctx context.Context, videoURL, videoID, lang, destDir string) error {
	args := []string{
		"--write-sub",
		"--write-auto-sub",
		"--sub-format", "vtt",
		"--sub-lang", lang,
		"--skip-download",
		"--no-warnings",
		"-o", filepath.Join(destDir, videoID+".%(ext)s"),
		videoURL,
	}

	_, err := c.run(ctx, args...)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInvocation, ctx.Err())
		}
		// A non-zero exit with the tool otherwise healthy just means
		// this video/language combination produced nothing.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Warn("yt-dlp subtitle run exited non-zero",
				"video_id", videoID,
				"lang", lang,
				"error", err,
			)
			return nil
		}
		return err
	}
	return nil
}

// Version reports the installed yt-dlp version, or an error when the
// binary is missing or broken.
func (c *Client) Version(ctx context.Context) (string, error) {
	stdout, err := c.run(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// run executes yt-dlp with the given arguments, prepending the cookie
// flag when configured, and returns captured stdout. Failures wrap
// [ErrInvocation] with truncated stderr for context.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.cfg.Path == "" {
		return nil, fmt.Errorf("%w: yt-dlp not found (install yt-dlp or set subtitles.yt_dlp_path)", ErrInvocation)
	}

	if c.cfg.CookiesFile != "" {
		args = append([]string{"--cookies", c.cfg.CookiesFile}, args...)
	}

	c.logger.Debug("running yt-dlp", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.cfg.Path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errOutput := strings.TrimSpace(stderr.String())
		if len(errOutput) > 500 {
			errOutput = errOutput[:500]
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrInvocation, err, errOutput)
	}

	return stdout.Bytes(), nil
}

// parsePlaylistLines decodes yt-dlp's JSON-lines flat-playlist output.
// Title falls back to "N/A" when absent; URL falls back from the url
// field to webpage_url. A malformed line fails the whole parse so a
// partial playlist is never returned.
func parsePlaylistLines(out []byte) ([]Entry, error) {
	var entries []Entry

	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		var item struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			WebpageURL string `json:"webpage_url"`
		}
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		if item.Title == "" {
			item.Title = "N/A"
		}
		if item.URL == "" {
			item.URL = item.WebpageURL
		}

		entries = append(entries, Entry{Title: item.Title, URL: item.URL})
	}

	return entries, nil
}

// VideoID extracts the video identifier from a YouTube watch or
// youtu.be URL. Returns an empty string when the URL has no
// recognizable ID.
func VideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "youtu.be"):
		return strings.TrimPrefix(strings.TrimRight(u.Path, "/"), "/")
	case strings.Contains(host, "youtube.com"):
		return u.Query().Get("v")
	}
	return ""
}

// IsVideoURL reports whether rawURL looks like a single-video YouTube
// URL that subtitle download understands.
func IsVideoURL(rawURL string) bool {
	return strings.Contains(rawURL, "youtube.com/watch?v=") ||
		strings.Contains(rawURL, "youtu.be/")
}
