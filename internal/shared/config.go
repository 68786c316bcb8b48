package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Engine      EngineConfig      `toml:"engine"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	LastFM  LastFMConfig  `toml:"lastfm"`
}

// SpotifyConfig contains Spotify API credentials and the persisted OAuth token.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string    `toml:"client_secret" env:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI  string    `toml:"redirect_uri" env:"SPOTIFY_REDIRECT_URI"`
	AccessToken  string    `toml:"access_token" env:"SPOTIFY_ACCESS_TOKEN"`
	RefreshToken string    `toml:"refresh_token" env:"SPOTIFY_REFRESH_TOKEN"`
	TokenExpiry  time.Time `toml:"token_expiry" env:"SPOTIFY_TOKEN_EXPIRY"`
}

// LastFMConfig contains the Last.fm API key. The secret is only needed for signed calls.
type LastFMConfig struct {
	APIKey    string `toml:"api_key" env:"LASTFM_API_KEY"`
	APISecret string `toml:"api_secret" env:"LASTFM_API_SECRET"`
}

// EngineConfig tunes resolution, rate limiting, retries and playlist assembly.
type EngineConfig struct {
	Workers         int    `toml:"workers" env:"PLAYGEN_WORKERS" validate:"min=1,max=32"`
	TimeoutSeconds  int    `toml:"timeout_seconds" env:"PLAYGEN_TIMEOUT_SECONDS" validate:"min=1,max=600"`
	RateLimitMS     int    `toml:"rate_limit_ms" env:"PLAYGEN_RATE_LIMIT_MS" validate:"min=0"`
	MaxAttempts     int    `toml:"max_attempts" env:"PLAYGEN_MAX_ATTEMPTS" validate:"min=1,max=10"`
	RetryBaseMS     int    `toml:"retry_base_ms" env:"PLAYGEN_RETRY_BASE_MS" validate:"min=1"`
	PlaylistSize    int    `toml:"playlist_size" env:"PLAYGEN_PLAYLIST_SIZE" validate:"min=1,max=100"`
	SimilarLimit    int    `toml:"similar_limit" validate:"min=1,max=50"`
	TracksPerArtist int    `toml:"tracks_per_artist" validate:"min=1,max=20"`
	BatchSize       int    `toml:"batch_size" validate:"min=1,max=50"`
	BatchDelayMS    int    `toml:"batch_delay_ms" validate:"min=0"`
	CacheSize       int    `toml:"cache_size" validate:"min=1"`
	Market          string `toml:"market" env:"PLAYGEN_MARKET" validate:"omitempty,len=2,uppercase"`
}

// Timeout is the join-all deadline for one fan-out.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// RateLimit is the minimum spacing between calls to one external API.
func (e EngineConfig) RateLimit() time.Duration {
	return time.Duration(e.RateLimitMS) * time.Millisecond
}

// RetryBase is the unit of the exponential retry delay.
func (e EngineConfig) RetryBase() time.Duration {
	return time.Duration(e.RetryBaseMS) * time.Millisecond
}

// BatchDelay is the pause between track detail batches.
func (e EngineConfig) BatchDelay() time.Duration {
	return time.Duration(e.BatchDelayMS) * time.Millisecond
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PLAYGEN_DATABASE" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"min=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"min=0"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

// Map returns the credentials in the shape expected by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// Token returns the persisted OAuth token, or nil when the user has never authorized.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       s.TokenExpiry,
	}
}

// Update stores a freshly issued token. Spotify may omit the refresh token on refresh, in which case the old one is kept.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenExpiry = token.Expiry
	return nil
}

// Validate checks the engine, database and server sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides configuration values from the environment.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values. Environment variables take precedence over the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes the configuration back to path. Used after OAuth to persist tokens.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
