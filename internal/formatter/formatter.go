// package formatter exports a generated playlist to CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/shared"
)

// Format names an export format.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "md"
	Text     Format = "txt"
	JSON     Format = "json"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(s), ".")); f {
	case CSV, Markdown, Text, JSON:
		return f, nil
	case "markdown":
		return Markdown, nil
	case "text":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
	}
}

// Export is a playlist and its tracks in playlist order.
type Export struct {
	Playlist   models.Playlist `json:"playlist"`
	Tracks     []*models.Track `json:"tracks"`
	Unresolved []string        `json:"unresolved,omitempty"`
}

// ExportToCSV converts an export to CSV with columns: Position, ID, Title, Artists, Album, Duration, URI, ISRC
func ExportToCSV(export *Export) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "ID", "Title", "Artists", "Album", "Duration", "URI", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range export.Tracks {
		record := []string{
			strconv.Itoa(i + 1),
			track.ID,
			track.Name,
			strings.Join(track.ArtistNames(), "; "),
			track.Album,
			strconv.Itoa(track.DurationMS / 1000),
			track.URI,
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts an export to a Markdown document with a track list and the unresolved mentions.
func ExportToMarkdown(export *Export) ([]byte, error) {
	var buf bytes.Buffer
	pl := export.Playlist

	fmt.Fprintf(&buf, "# %s\n\n", pl.Name)

	if pl.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", pl.Description)
	}
	if pl.URL != "" {
		fmt.Fprintf(&buf, "**Link**: <%s>\n", pl.URL)
	}

	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", visibility(pl.Public))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		album := ""
		if track.Album != "" {
			album = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s%s [%s]\n", i+1, track.String(), album, duration(track.DurationMS))
	}

	if len(export.Unresolved) > 0 {
		buf.WriteString("\n## Unresolved\n\n")
		for _, m := range export.Unresolved {
			fmt.Fprintf(&buf, "- %s\n", m)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts an export to plain text, one "Artist - Title" line per track.
func ExportToText(export *Export) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Name)
	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", export.Playlist.Description)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, track.String())
	}

	return buf.Bytes(), nil
}

// Render encodes export in format.
func Render(export *Export, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return ExportToCSV(export)
	case Markdown:
		return ExportToMarkdown(export)
	case Text:
		return ExportToText(export)
	case JSON:
		return shared.MarshalJSON(export, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// WriteExport writes export to path, creating parent directories. The format follows the file extension
// unless format is set. An empty path defaults to {playlist.ID}_tracks.{format}.
func WriteExport(export *Export, path string, format Format) (string, error) {
	if format == "" {
		ext := filepath.Ext(path)
		if ext == "" {
			format = Text
		} else {
			f, err := ParseFormat(ext)
			if err != nil {
				return "", err
			}
			format = f
		}
	}

	if path == "" {
		path = fmt.Sprintf("%s_tracks.%s", export.Playlist.ID, format)
	}

	data, err := Render(export, format)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func visibility(public bool) string {
	if public {
		return "Public"
	}
	return "Private"
}

func duration(ms int) string {
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
