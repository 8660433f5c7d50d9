// Package sheet loads the lecture-tracking spreadsheet: an optional
// HTTP fetch of the published CSV, then parsing into series records.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/nugget/lectern/internal/httpkit"
	"github.com/nugget/lectern/internal/lectures"
	"github.com/nugget/lectern/internal/playlist"
)

// ErrNoLinkColumn indicates the CSV has no recognizable lecture-link
// column.
var ErrNoLinkColumn = errors.New("no lecture link column found")

// linkColumns are the accepted names for the playlist URL column, in
// preference order.
var linkColumns = []string{"playlist_url", "current_lecture_link", "url"}

// Fetch downloads the published CSV and writes it to path. The caller
// decides when to re-fetch; Load reads whatever is on disk.
func Fetch(ctx context.Context, client *http.Client, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build sheet request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch sheet: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch sheet: %s: %s", resp.Status, httpkit.ReadErrorBody(resp.Body, 500))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sheet body: %w", err)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}
	return nil
}

// Load reads the CSV at path and returns one Series per data row.
func Load(path string) ([]lectures.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sheet: %w", err)
	}
	defer f.Close()

	series, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse sheet %s: %w", path, err)
	}
	return series, nil
}

// Parse reads CSV rows from r. Header names are normalized (trimmed,
// lowercased, spaces to underscores, dots stripped) before matching,
// so "Current Lecture Link" and "current_lecture_link" are the same
// column. Progress cells that aren't numeric load as unknown (nil)
// rather than failing the row.
func Parse(r io.Reader) ([]lectures.Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeColumn(name)] = i
	}

	linkCol := -1
	for _, name := range linkColumns {
		if i, ok := cols[name]; ok {
			linkCol = i
			break
		}
	}
	if linkCol < 0 {
		return nil, fmt.Errorf("%w (accepted: %s)", ErrNoLinkColumn, strings.Join(linkColumns, ", "))
	}

	titleCol, ok := cols["lecture_series"]
	if !ok {
		return nil, errors.New("no lecture_series column found")
	}
	currentCol, hasCurrent := cols["current"]
	totalCol, hasTotal := cols["total"]

	var series []lectures.Series
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		url := field(row, linkCol)
		s := lectures.Series{
			Title:       field(row, titleCol),
			PlaylistURL: url,
			IsPlaylist:  playlist.IsPlaylistURL(url),
		}
		if hasCurrent {
			s.Watched = parseCount(field(row, currentCol))
		}
		if hasTotal {
			s.Total = parseCount(field(row, totalCol))
		}

		series = append(series, s)
	}

	return series, nil
}

// normalizeColumn mirrors the sheet's loose header conventions.
func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, ".", "")
}

// field returns row[i] trimmed, or "" when the row is short.
func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseCount coerces a progress cell to an int. Spreadsheet exports
// sometimes render counts as floats ("12.0"); anything non-numeric is
// unknown progress, not an error.
func parseCount(s string) *int {
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n := int(f)
		return &n
	}
	return nil
}
