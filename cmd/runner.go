package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playgen/internal/cache"
	"github.com/desertthunder/playgen/internal/ratelimit"
	"github.com/desertthunder/playgen/internal/repositories"
	"github.com/desertthunder/playgen/internal/retry"
	"github.com/desertthunder/playgen/internal/services"
	"github.com/desertthunder/playgen/internal/shared"
	"github.com/desertthunder/playgen/internal/tasks"
	"github.com/desertthunder/playgen/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Services, the run log and the engine are built on first use so that commands like setup work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	catalog    tasks.Catalog
	discovery  tasks.Discovery
	spotify    *services.SpotifyService
	runs       *repositories.RunRepository
	db         *sql.DB
	engine     *tasks.PlaylistEngine
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	palette    *ui.Palette
	verbose    bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    tasks.Catalog   // Replaces the Spotify client
	Discovery  tasks.Discovery // Replaces the Last.fm client
	Runs       *repositories.RunRepository
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		discovery:  opts.Discovery,
		runs:       opts.Runs,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		palette:    ui.DefaultPalette,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, resolveCommand, similarCommand, tagsCommand, playlistCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies --verbose.
//
// A missing file is not an error: defaults and environment overrides are used instead.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.IsSet("config") || r.configPath == "" {
		r.configPath = cmd.String("config")
	}
	if r.configPath == "" {
		r.configPath = defaultConfigPath
	}

	r.verbose = cmd.Bool("verbose")
	if r.verbose {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if r.config != nil {
		return ctx, nil
	}

	config, err := loadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

// After releases the run log database.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.runs = nil
	return err
}

// loadConfig reads path when it exists, otherwise it starts from defaults with environment overrides.
func loadConfig(path string) (*shared.Config, error) {
	config, err := shared.LoadConfig(path)
	if !errors.Is(err, shared.ErrMissingConfig) {
		return config, err
	}

	config = shared.DefaultConfig()
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// prepare builds the engine and its collaborators. With user set the catalog must hold a user token,
// which playlist writes require; otherwise an app token is enough.
func (r *Runner) prepare(ctx context.Context, user bool) error {
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	engineCfg := r.config.Engine

	if r.catalog == nil {
		svc, err := r.spotifyService()
		if err != nil {
			return err
		}
		if err := r.authenticate(ctx, svc, user); err != nil {
			return err
		}
		r.catalog = svc
	}

	if r.discovery == nil && r.config.Credentials.LastFM.APIKey != "" {
		svc, err := services.NewLastfmService(map[string]string{
			"api_key":    r.config.Credentials.LastFM.APIKey,
			"api_secret": r.config.Credentials.LastFM.APISecret,
		}, services.LastfmOpts{
			Limiter: ratelimit.New("lastfm", engineCfg.RateLimit()),
			Logger:  r.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create Last.fm service: %w", err)
		}
		r.discovery = svc
	}

	if r.engine != nil {
		return nil
	}

	c, err := cache.New(engineCfg.CacheSize)
	if err != nil {
		return err
	}

	opts := tasks.EngineOpts{
		Workers:         engineCfg.Workers,
		Timeout:         engineCfg.Timeout(),
		PlaylistSize:    engineCfg.PlaylistSize,
		BatchSize:       engineCfg.BatchSize,
		BatchDelay:      engineCfg.BatchDelay(),
		TracksPerArtist: engineCfg.TracksPerArtist,
		SimilarLimit:    engineCfg.SimilarLimit,
		Cache:           c,
		Retry: retry.New(retry.Options{
			MaxAttempts: engineCfg.MaxAttempts,
			BaseDelay:   engineCfg.RetryBase(),
			Logger:      r.logger,
		}),
		Logger: r.logger,
	}
	if history, ok := r.catalog.(tasks.ListeningHistory); ok {
		opts.History = history
	}
	if user {
		if runs, err := r.runLog(); err != nil {
			r.logger.Warn("run log unavailable, playlists will not be recorded", "error", err)
		} else {
			opts.Recorder = runs
		}
	}

	engine, err := tasks.NewPlaylistEngine(r.catalog, r.discovery, opts)
	if err != nil {
		return err
	}
	r.engine = engine
	return nil
}

func (r *Runner) spotifyService() (*services.SpotifyService, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s or the environment", shared.ErrMissingCredentials, r.configPath)
	}

	svc, err := services.NewSpotifyService(creds.Map(), services.SpotifyOpts{
		Market:     r.config.Engine.Market,
		Limiter:    ratelimit.New("spotify", r.config.Engine.RateLimit()),
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	r.spotify = svc
	return svc, nil
}

// authenticate installs the stored user token, falling back to an app token when user access is not needed.
func (r *Runner) authenticate(ctx context.Context, svc *services.SpotifyService, user bool) error {
	token := r.config.Credentials.Spotify.Token()
	if token != nil {
		svc.SetTokenRefreshCallback(r.saveToken)
		return svc.OAuthenticate(ctx, token)
	}
	if user {
		return fmt.Errorf("%w: run 'playgen auth' first", shared.ErrNotAuthenticated)
	}
	return svc.AuthenticateClientCredentials(ctx)
}

// saveToken records a refreshed token and writes it back to the config file when one exists.
func (r *Runner) saveToken(token *oauth2.Token) {
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		r.logger.Warn("refreshed token rejected", "error", err)
		return
	}
	if _, err := os.Stat(r.configPath); err != nil {
		return
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		r.logger.Warn("failed to save refreshed token", "error", err)
	}
}

// runLog opens the configured database on first use.
func (r *Runner) runLog() (*repositories.RunRepository, error) {
	if r.runs != nil {
		return r.runs, nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	r.runs = repositories.NewRunRepository(db)
	return r.runs, nil
}

// withReauth runs fn and, when the catalog rejects an expired token, reauthorizes in the browser and runs it once more.
func (r *Runner) withReauth(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, shared.ErrTokenExpired) || r.spotify == nil {
		return err
	}

	r.writePlainln("⚠ Authentication token expired. Starting reauthorization...")
	if reauthErr := r.reauthorize(ctx); reauthErr != nil {
		return fmt.Errorf("reauthorization failed: %w", reauthErr)
	}
	r.writePlain("✓ Reauthorized. Retrying...\n")
	return fn()
}

// progress starts a printer for a run and returns the channel with a func that closes it and waits for the printer.
func (r *Runner) progress(quiet bool) (chan tasks.ProgressUpdate, func()) {
	if quiet {
		return nil, func() {}
	}

	updates := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	printer := ui.NewPrinter(r.output, r.palette, r.verbose)
	go func() {
		defer close(done)
		printer.Consume(updates)
	}()

	return updates, func() {
		close(updates)
		<-done
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
