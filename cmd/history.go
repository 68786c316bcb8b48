package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/playgen/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

const historyTimeLayout = "2006-01-02 15:04"

// HistoryList lists the most recent runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	runs, err := r.runLog()
	if err != nil {
		return err
	}

	list, err := runs.List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	if len(list) == 0 {
		r.writePlain("No playlists created yet\n")
		return nil
	}

	r.writePlain("%s\n\n", r.palette.Title(fmt.Sprintf("%d recent runs", len(list))))
	for _, run := range list {
		r.writePlain("%s  %-8s %s\n", r.palette.Help(humanize.Time(run.CreatedAt)), run.Mode, run.PlaylistName)
		r.writePlain("   %s\n", run.ID)
		r.writePlain("   %d tracks from %d requested, %d unresolved\n", run.Resolved, run.Requested, run.Unresolved)
	}
	return nil
}

// HistoryShow prints one run with its tracks.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	runs, err := r.runLog()
	if err != nil {
		return err
	}

	run, err := runs.Get(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(run, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", r.palette.Title(run.PlaylistName))
	r.writePlain("ID:       %s\n", run.ID)
	r.writePlain("Mode:     %s\n", run.Mode)
	r.writePlain("Playlist: %s\n", run.PlaylistURI)
	r.writePlain("Created:  %s\n", run.CreatedAt.Local().Format(historyTimeLayout))
	r.writePlain("Tracks:   %d from %d requested, %d unresolved\n\n", run.Resolved, run.Requested, run.Unresolved)
	for _, t := range run.Tracks {
		r.writePlain("%2d. %s - %s\n", t.Position+1, t.Artist, t.Name)
	}
	return nil
}

// HistoryDelete removes a run and its tracks from the log.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	runs, err := r.runLog()
	if err != nil {
		return err
	}

	if err := runs.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted run %s\n", id)
}
