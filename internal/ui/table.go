package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/playgen/internal/models"
)

// TrackTable renders tracks as a bordered table in playlist order.
func (p *Palette) TrackTable(tracks []*models.Track) string {
	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			t.Name,
			strings.Join(t.ArtistNames(), ", "),
			formatDuration(t.DurationMS),
			t.ID,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.help).
		Headers("#", "Title", "Artist", "Length", "ID").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.title.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}

// Summary renders the one-line outcome of a playlist run.
func (p *Palette) Summary(pl *models.Playlist, resolved, requested, unresolved int) string {
	head := p.OK("✓ " + pl.Name)
	if pl.URL != "" {
		head += " " + p.Help(pl.URL)
	}
	counts := fmt.Sprintf("%d tracks from %d requested", resolved, requested)
	if unresolved > 0 {
		counts += ", " + p.Warn(fmt.Sprintf("%d unresolved", unresolved))
	}
	return head + "\n  " + counts
}

func formatDuration(ms int) string {
	s := ms / 1000
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
