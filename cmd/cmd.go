// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// flags are the root flags, inherited by every command.
func (r *Runner) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   defaultConfigPath,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log debug output and show every resolved mention",
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

func exportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Export tracks to a file (format from extension)",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Export format: csv, md, txt or json",
		},
	}
}

func inputFlags(usage string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "file",
			Usage: usage + ", one per line (- for stdin)",
		},
	}
}

func playlistFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Aliases:  []string{"n"},
			Usage:    "Playlist name",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "Playlist description",
		},
		&cli.BoolFlag{
			Name:  "public",
			Usage: "Make playlist public",
		},
	}
}

func historyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "from-history",
			Usage: "Without artists, seed from your top artists over a listening range: short, medium or long",
		},
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// setupCommand writes a starter configuration and initializes the run log.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and initialize the run log database",
		Action: r.Setup,
	}
}

// authCommand runs the Spotify OAuth flow.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize playlist access with Spotify",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL instead of opening a browser",
			},
		},
		Action: r.Auth,
	}
}

// resolveCommand resolves mentions without creating a playlist.
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve \"Title - Artist\" mentions to catalog tracks",
		ArgsUsage: "[mention...]",
		Flags:     concat(inputFlags("Read mentions from a file"), outputFlags(), exportFlags()),
		Action:    r.Resolve,
	}
}

// similarCommand shows the similar-artist set of one artist.
func similarCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "similar",
		Usage: "List artists similar to an artist",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "artist"},
		},
		Flags:  outputFlags(),
		Action: r.Similar,
	}
}

// tagsCommand lists popular tags.
func tagsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tags",
		Usage:  "List popular tags for the tags playlist mode",
		Flags:  outputFlags(),
		Action: r.Tags,
	}
}

// playlistCommand creates playlists in each of the four input modes.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Create a Spotify playlist",
		Commands: []*cli.Command{
			{
				Name:      "mentions",
				Usage:     "From \"Title - Artist\" mentions",
				ArgsUsage: "[mention...]",
				Flags:     concat(playlistFlags(), inputFlags("Read mentions from a file"), outputFlags(), exportFlags()),
				Action:    r.PlaylistMentions,
			},
			{
				Name:      "uris",
				Usage:     "From track ids, spotify:track: URIs or open.spotify.com links",
				ArgsUsage: "[id...]",
				Flags:     concat(playlistFlags(), inputFlags("Read ids from a file"), outputFlags(), exportFlags()),
				Action:    r.PlaylistURIs,
			},
			{
				Name:      "artists",
				Usage:     "From seed artists and their similar artists",
				ArgsUsage: "[artist...]",
				Flags:     concat(playlistFlags(), inputFlags("Read artists from a file"), historyFlags(), outputFlags(), exportFlags()),
				Action:    r.PlaylistArtists,
			},
			{
				Name:      "tags",
				Usage:     "From the top artists of tags",
				ArgsUsage: "[tag...]",
				Flags:     concat(playlistFlags(), inputFlags("Read tags from a file"), outputFlags(), exportFlags()),
				Action:    r.PlaylistTags,
			},
		},
	}
}

// historyCommand browses the run log.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show playlists created by previous runs",
		Flags: concat([]cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: 20,
			},
		}, outputFlags()),
		Action: r.HistoryList,
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show one run with its tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  outputFlags(),
				Action: r.HistoryShow,
			},
			{
				Name:  "delete",
				Usage: "Delete a run from the log",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.HistoryDelete,
			},
		},
	}
}
