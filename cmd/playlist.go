package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/desertthunder/playgen/internal/formatter"
	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/shared"
	"github.com/desertthunder/playgen/internal/tasks"
	"github.com/urfave/cli/v3"
)

type playlistMode func(ctx context.Context, progress chan<- tasks.ProgressUpdate, req tasks.PlaylistRequest) (*tasks.PlaylistResult, error)

// Resolve resolves mentions to tracks and prints them without creating a playlist.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	mentions, err := r.readInputs(cmd)
	if err != nil {
		return err
	}
	if len(mentions) == 0 {
		return fmt.Errorf("%w: pass mentions as arguments or with --file", shared.ErrMissingArgument)
	}

	if err := r.prepare(ctx, false); err != nil {
		return err
	}

	useJSON := cmd.Bool("json")
	var result *tasks.ResolveResult
	err = r.withReauth(ctx, func() error {
		progress, stop := r.progress(useJSON)
		defer stop()

		var resolveErr error
		result, resolveErr = r.engine.Resolve(ctx, progress, mentions)
		return resolveErr
	})
	if err != nil {
		return err
	}

	if cmd.String("output") != "" || cmd.String("format") != "" {
		export := &formatter.Export{
			Playlist:   models.Playlist{ID: "resolved", Name: "Resolved mentions"},
			Tracks:     result.Tracks,
			Unresolved: unresolvedMentions(result.Outcomes),
		}
		if err := r.export(cmd, export); err != nil {
			return err
		}
	}

	if useJSON {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", r.palette.TrackTable(result.Tracks))
	r.writePlain("%d tracks from %d mentions", len(result.Tracks), result.Requested)
	if result.Unresolved > 0 {
		r.writePlain(", %s", r.palette.Warn(fmt.Sprintf("%d unresolved", result.Unresolved)))
	}
	r.writePlain("\n")
	return nil
}

// Similar prints the similar-artist set of one artist.
func (r *Runner) Similar(ctx context.Context, cmd *cli.Command) error {
	artist := strings.TrimSpace(cmd.StringArg("artist"))
	if artist == "" {
		return fmt.Errorf("%w: artist", shared.ErrMissingArgument)
	}

	if err := r.prepare(ctx, false); err != nil {
		return err
	}

	set, err := r.engine.Similar(ctx, artist)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(set, cmd.Bool("pretty"))
	}

	if set.Empty() {
		r.writePlain("%s\n", r.palette.Warn("No similar artists found for "+artist))
		return nil
	}

	name := set.Artist
	if set.Canonical != "" {
		name = set.Canonical
	}
	r.writePlain("%s %s\n\n", r.palette.Title(name), r.palette.Help("("+set.Tier.String()+")"))
	for i, name := range set.Names {
		r.writePlain("%2d. %s\n", i+1, name)
	}
	return nil
}

// Tags prints the globally popular tags.
func (r *Runner) Tags(ctx context.Context, cmd *cli.Command) error {
	if err := r.prepare(ctx, false); err != nil {
		return err
	}

	tags, err := r.engine.TopTags(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tags, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n\n", r.palette.Title("Popular tags"))
	for _, tag := range tags {
		r.writePlain("  %s\n", tag)
	}
	return nil
}

// PlaylistMentions builds a playlist from free-text mentions.
func (r *Runner) PlaylistMentions(ctx context.Context, cmd *cli.Command) error {
	return r.runPlaylist(ctx, cmd, func(req *tasks.PlaylistRequest, inputs []string) { req.Mentions = inputs },
		func(ctx context.Context, p chan<- tasks.ProgressUpdate, req tasks.PlaylistRequest) (*tasks.PlaylistResult, error) {
			return r.engine.Run(ctx, p, req)
		})
}

// PlaylistURIs builds a playlist from catalog ids, URIs or links.
func (r *Runner) PlaylistURIs(ctx context.Context, cmd *cli.Command) error {
	return r.runPlaylist(ctx, cmd, func(req *tasks.PlaylistRequest, inputs []string) { req.IDs = inputs },
		func(ctx context.Context, p chan<- tasks.ProgressUpdate, req tasks.PlaylistRequest) (*tasks.PlaylistResult, error) {
			return r.engine.RunURIs(ctx, p, req)
		})
}

// PlaylistArtists builds a playlist from seed artists and their similar artists, or from the user's listening
// history with --from-history.
func (r *Runner) PlaylistArtists(ctx context.Context, cmd *cli.Command) error {
	return r.runPlaylist(ctx, cmd, func(req *tasks.PlaylistRequest, inputs []string) {
		req.Artists = inputs
		req.History = cmd.String("from-history")
	},
		func(ctx context.Context, p chan<- tasks.ProgressUpdate, req tasks.PlaylistRequest) (*tasks.PlaylistResult, error) {
			return r.engine.RunArtists(ctx, p, req)
		})
}

// PlaylistTags builds a playlist from the top artists of tags.
func (r *Runner) PlaylistTags(ctx context.Context, cmd *cli.Command) error {
	return r.runPlaylist(ctx, cmd, func(req *tasks.PlaylistRequest, inputs []string) { req.Tags = inputs },
		func(ctx context.Context, p chan<- tasks.ProgressUpdate, req tasks.PlaylistRequest) (*tasks.PlaylistResult, error) {
			return r.engine.RunTags(ctx, p, req)
		})
}

// runPlaylist reads the inputs of a playlist command, runs mode and reports the result.
//
// A run that resolved nothing still prints what was attempted before returning its error.
func (r *Runner) runPlaylist(ctx context.Context, cmd *cli.Command, fill func(*tasks.PlaylistRequest, []string), mode playlistMode) error {
	inputs, err := r.readInputs(cmd)
	if err != nil {
		return err
	}
	if len(inputs) == 0 && !cmd.IsSet("from-history") {
		return fmt.Errorf("%w: pass inputs as arguments or with --file", shared.ErrMissingArgument)
	}

	req := tasks.PlaylistRequest{
		Name:        cmd.String("name"),
		Description: cmd.String("description"),
		Public:      cmd.Bool("public"),
	}
	fill(&req, inputs)

	if err := r.prepare(ctx, true); err != nil {
		return err
	}

	useJSON := cmd.Bool("json")
	var result *tasks.PlaylistResult
	err = r.withReauth(ctx, func() error {
		progress, stop := r.progress(useJSON)
		defer stop()

		var runErr error
		result, runErr = mode(ctx, progress, req)
		return runErr
	})
	if err != nil {
		if errors.Is(err, shared.ErrNoTracks) && result != nil && !useJSON {
			r.writePlain("%s\n", r.palette.Err(fmt.Sprintf("✗ nothing usable among %d inputs", result.Requested)))
		}
		return err
	}

	if cmd.String("output") != "" || cmd.String("format") != "" {
		export := &formatter.Export{
			Playlist:   *result.Playlist,
			Tracks:     result.Tracks,
			Unresolved: unresolvedMentions(result.Mentions),
		}
		if err := r.export(cmd, export); err != nil {
			return err
		}
	}

	if useJSON {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("\n%s\n", r.palette.TrackTable(result.Tracks))
	r.writePlain("%s\n", r.palette.Summary(result.Playlist, len(result.Tracks), result.Requested, result.Unresolved))
	return nil
}

// export writes the --output file in the --format format.
func (r *Runner) export(cmd *cli.Command, export *formatter.Export) error {
	var format formatter.Format
	if f := cmd.String("format"); f != "" {
		parsed, err := formatter.ParseFormat(f)
		if err != nil {
			return err
		}
		format = parsed
	}

	path, err := formatter.WriteExport(export, cmd.String("output"), format)
	if err != nil {
		return err
	}
	r.logger.Info("tracks exported", "path", path, "tracks", len(export.Tracks))
	return nil
}

// readInputs collects positional arguments and, with --file, one entry per non-blank line of the file or stdin.
func (r *Runner) readInputs(cmd *cli.Command) ([]string, error) {
	var inputs []string
	for _, arg := range cmd.Args().Slice() {
		if arg = strings.TrimSpace(arg); arg != "" {
			inputs = append(inputs, arg)
		}
	}

	path := cmd.String("file")
	if path == "" {
		return inputs, nil
	}

	var src io.Reader = r.input
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		src = f
	}

	lines, err := readLines(src)
	if err != nil {
		return nil, err
	}
	return append(inputs, lines...), nil
}

// readLines returns the trimmed non-blank lines of src, skipping # comments.
func readLines(src io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return lines, nil
}

func unresolvedMentions(outcomes []tasks.Outcome) []string {
	var out []string
	for _, o := range outcomes {
		if !o.Resolved() {
			out = append(out, o.Mention)
		}
	}
	return out
}
