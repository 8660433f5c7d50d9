// Lectern tracks lecture series and their subtitles.
//
// It loads a spreadsheet of lecture playlists with watch progress,
// picks random lectures to watch or review, and downloads and cleans
// subtitle text via yt-dlp, persisting it in SQLite. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	lectern serve             Start the API server
//	lectern watch             Pick the next lecture to watch
//	lectern review            Pick a watched lecture to review
//	lectern download          Bulk-download subtitles for watched lectures
//	lectern version           Print version and build information
//	lectern -o json watch     Output the selection as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/lectern/internal/buildinfo"
	"github.com/nugget/lectern/internal/config"
	"github.com/nugget/lectern/internal/fetcher"
	"github.com/nugget/lectern/internal/httpkit"
	"github.com/nugget/lectern/internal/lectures"
	"github.com/nugget/lectern/internal/playlist"
	"github.com/nugget/lectern/internal/sheet"
	"github.com/nugget/lectern/internal/store"
	"github.com/nugget/lectern/internal/web"
	"github.com/nugget/lectern/internal/ytdlp"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit, os.Stdout, and os.Args out of the application logic.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the lectern command. All OS-level
// dependencies are injected as parameters so the full lifecycle can be
// driven from tests. It returns nil on clean shutdown.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals (flag.CommandLine), which interferes with calling run()
	// concurrently from tests, and the argument surface here is small.
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unexpected argument %q (try -help)", args[i])
		}
	}

	if command == "" {
		return printUsage(stdout)
	}

	if command == "version" {
		if outputFmt == "json" {
			return json.NewEncoder(stdout).Encode(buildinfo.Info())
		}
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}

	cfgFile, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgFile, err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level}))
	logger.Info("starting", "build", buildinfo.String(), "config", cfgFile)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return a.serve(ctx)
	case "watch":
		return a.oneShot(ctx, stdout, outputFmt, func(series []lectures.Series) (any, string, error) {
			sel, err := a.engine.SelectToWatch(ctx, series)
			if err != nil {
				return nil, "", err
			}
			return sel, sel.Message, nil
		})
	case "review":
		return a.oneShot(ctx, stdout, outputFmt, func(series []lectures.Series) (any, string, error) {
			sel, err := a.engine.SelectForReview(ctx, series)
			if err != nil {
				return nil, "", err
			}
			text := sel.Message
			if sel.SubtitlesStored {
				text += "\n\n" + sel.Subtitles
			} else {
				text += "\n(subtitles not yet downloaded)"
			}
			return sel, text, nil
		})
	case "download":
		return a.oneShot(ctx, stdout, outputFmt, func(series []lectures.Series) (any, string, error) {
			report := a.engine.BulkDownload(ctx, series)
			text := fmt.Sprintf("Downloaded: %d, skipped: %d, failed: %d",
				report.Downloaded, report.Skipped, report.Failed)
			return report, text, nil
		})
	default:
		return fmt.Errorf("unknown command %q (try -help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintf(w, `lectern - lecture tracking and subtitle download

Usage:
  lectern [flags] <command>

Commands:
  serve      Start the API server
  watch      Pick the next lecture to watch
  review     Pick a watched lecture to review
  download   Bulk-download subtitles for watched lectures
  version    Print version and build information

Flags:
  -config <path>   Config file (default: search %v)
  -o <format>      Output format for one-shot commands: text or json
`, config.DefaultSearchPaths())
	return nil
}

// app wires the long-lived components together.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	runner  *ytdlp.Client
	cache   *playlist.Cache
	fetcher *fetcher.Fetcher
	engine  *lectures.Engine
	httpc   *http.Client
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open subtitle store %s: %w", cfg.DBPath, err)
	}

	runner := ytdlp.New(ytdlp.Config{
		Path:        cfg.Subtitles.YtDlpPath,
		CookiesFile: cfg.Subtitles.CookiesFile,
	}, logger)

	httpOpts := []httpkit.ClientOption{httpkit.WithTimeout(2 * time.Minute)}
	if cfg.Sheet.InsecureSkipVerify {
		httpOpts = append(httpOpts, httpkit.WithTLSInsecureSkipVerify())
	}

	cache := playlist.New(runner, logger)
	f := fetcher.New(cache, st, runner, cfg.Subtitles.Languages, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		runner:  runner,
		cache:   cache,
		fetcher: f,
		engine:  lectures.NewEngine(cache, st, f, nil, logger),
		httpc:   httpkit.NewClient(httpOpts...),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

// preflight logs whether yt-dlp is usable. Selection still works
// without it; subtitle download will not.
func (a *app) preflight(ctx context.Context) {
	if version, err := a.runner.Version(ctx); err != nil {
		a.logger.Warn("yt-dlp not available; subtitle features will fail", "error", err)
	} else {
		a.logger.Info("yt-dlp found", "version", version)
	}
}

func (a *app) serve(ctx context.Context) error {
	a.preflight(ctx)

	srv := web.NewServer(a.cfg.Listen.Address, a.cfg.Listen.Port,
		a.engine, a.fetcher, a.cache, a.store, a.runner,
		web.SheetSource{CSVPath: a.cfg.Sheet.CSVPath, CSVURL: a.cfg.Sheet.CSVURL},
		a.httpc, a.logger)

	if _, err := srv.Reload(ctx); err != nil {
		// Serve anyway; the sheet may be fixed and reloaded via the API.
		a.logger.Error("initial sheet load failed", "error", err)
	}

	return srv.Start(ctx)
}

// loadSeries fetches the sheet when a URL is configured, then loads it
// from disk.
func (a *app) loadSeries(ctx context.Context) ([]lectures.Series, error) {
	if a.cfg.Sheet.CSVURL != "" {
		if err := sheet.Fetch(ctx, a.httpc, a.cfg.Sheet.CSVURL, a.cfg.Sheet.CSVPath); err != nil {
			return nil, err
		}
	}
	return sheet.Load(a.cfg.Sheet.CSVPath)
}

// oneShot runs a single selection or download operation and prints the
// result in the requested format.
func (a *app) oneShot(ctx context.Context, stdout io.Writer, outputFmt string,
	op func([]lectures.Series) (any, string, error)) error {
	a.preflight(ctx)

	series, err := a.loadSeries(ctx)
	if err != nil {
		return err
	}

	payload, text, err := op(series)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	fmt.Fprintln(stdout, text)
	return nil
}
