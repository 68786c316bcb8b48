// Spotify Web API catalog client
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playgen/internal/models"
	"github.com/desertthunder/playgen/internal/ratelimit"
	"github.com/desertthunder/playgen/internal/shared"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Catalog request limits
	SpotifySearchLimit      = 10
	SpotifyMaxSeveralTracks = 50
	SpotifyMaxAddTracks     = 100
	SpotifyMaxTopItems      = 50
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track object.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	URI         string          `json:"uri"`
	IsPlayable  *bool           `json:"is_playable"` // Only present when a market is requested
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyPlaylist represents a playlist returned on creation.
type SpotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Public       bool         `json:"public"`
	URI          string       `json:"uri"`
	ExternalURLs externalURLs `json:"external_urls"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyTopArtistsResponse struct {
	Items []SpotifyArtist `json:"items"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Model converts the API object. A missing is_playable flag means the catalog did not restrict the track.
func (t SpotifyTrack) Model() models.Track {
	artists := make([]models.Artist, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, models.Artist{ID: a.ID, Name: a.Name, URI: a.URI})
	}
	playable := true
	if t.IsPlayable != nil {
		playable = *t.IsPlayable
	}
	return models.Track{
		ID:         t.ID,
		Name:       t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		URI:        t.URI,
		DurationMS: t.DurationMS,
		IsPlayable: playable,
		ISRC:       t.ExternalIDs.ISRC,
		Popularity: t.Popularity,
	}
}

// SpotifyOpts configures a [SpotifyService].
type SpotifyOpts struct {
	BaseURL    string             // API root (default https://api.spotify.com/v1)
	TokenURL   string             // Token endpoint (default https://accounts.spotify.com/api/token)
	Market     string             // ISO country used for search and playability
	Limiter    *ratelimit.Limiter // Shared by every request made by this client
	HTTPClient *http.Client       // Base client wrapped by the OAuth2 transport
	Logger     *log.Logger
}

// SpotifyService is the catalog client. Every request waits on the limiter first.
//
// Authentication is either a user token ([SpotifyService.OAuthenticate], required for playlist writes)
// or an app token ([SpotifyService.AuthenticateClientCredentials], enough for search and track lookups).
type SpotifyService struct {
	config      *oauth2.Config
	credentials map[string]string
	baseURL     string
	tokenURL    string
	market      string
	limiter     *ratelimit.Limiter
	base        *http.Client
	logger      *log.Logger

	mu         sync.RWMutex
	httpClient *http.Client
	userID     string
	onRefresh  func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts SpotifyOpts) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"playlist-modify-private",
			"playlist-modify-public",
			"user-top-read",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: opts.TokenURL,
		},
	}

	return &SpotifyService{
		config:      config,
		credentials: credentials,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		tokenURL:    opts.TokenURL,
		market:      opts.Market,
		limiter:     opts.Limiter,
		base:        opts.HTTPClient,
		logger:      shared.WithLogger(opts.Logger, "service", "spotify"),
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the underlying OAuth2 configuration.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// SetTokenRefreshCallback registers fn to receive every token issued by an automatic refresh.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

// Authenticate accepts either an "access_token" (with optional "refresh_token") or an "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken := credentials["access_token"]; accessToken != "" {
		return s.OAuthenticate(ctx, &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
			TokenType:    "Bearer",
		})
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		token, err := s.config.Exchange(s.oauthContext(ctx), authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		return s.OAuthenticate(ctx, token)
	}

	return fmt.Errorf("%w: missing access_token or auth_code in credentials", shared.ErrMissingCredentials)
}

// OAuthenticate installs a user token. The returned client refreshes it when expired and reports new tokens to the refresh callback.
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("%w: empty token", shared.ErrNotAuthenticated)
	}
	if token.RefreshToken == "" && !token.Expiry.IsZero() && time.Now().After(token.Expiry) {
		return fmt.Errorf("%w: %w", shared.ErrTokenExpired, shared.ErrNoRefreshToken)
	}

	octx := s.oauthContext(context.WithoutCancel(ctx))
	src := &notifyingSource{
		base:    s.config.TokenSource(octx, token),
		last:    token.AccessToken,
		service: s,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpClient = oauth2.NewClient(octx, oauth2.ReuseTokenSource(token, src))
	s.userID = ""
	return nil
}

// AuthenticateClientCredentials obtains an app token. It can search the catalog but cannot create playlists.
func (s *SpotifyService) AuthenticateClientCredentials(ctx context.Context) error {
	cc := &clientcredentials.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		TokenURL:     s.tokenURL,
	}

	octx := s.oauthContext(context.WithoutCancel(ctx))
	if _, err := cc.Token(octx); err != nil {
		return fmt.Errorf("%w: client credentials: %v", shared.ErrAuthFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpClient = cc.Client(octx)
	s.userID = ""
	return nil
}

// Authenticated reports whether a token has been installed.
func (s *SpotifyService) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpClient != nil
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.base)
}

func (s *SpotifyService) client() (*http.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpClient == nil {
		return nil, fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}
	return s.httpClient, nil
}

// doRequest performs an authenticated HTTP request to the Spotify API, encoding body and decoding into result as JSON.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	client, err := s.client()
	if err != nil {
		return err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return s.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.statusError(resp)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return newAPIError("spotify", 0, fmt.Sprintf("failed to decode response: %v", err))
	}
	return nil
}

func (s *SpotifyService) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, retrieveErr)
	}
	return newAPIError("spotify", 0, err.Error())
}

func (s *SpotifyService) statusError(resp *http.Response) error {
	var body spotifyErrorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &body)

	apiErr := newAPIError("spotify", resp.StatusCode, body.Error.Message)
	apiErr.RetryAfter = parseRetryAfter(resp.Header)
	s.logger.Debug("request failed", "status", resp.StatusCode, "message", body.Error.Message)
	return apiErr
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopArtists returns the names of the user's most listened artists over timeRange, most listened first.
func (s *SpotifyService) TopArtists(ctx context.Context, timeRange models.TimeRange, limit int) ([]string, error) {
	if limit <= 0 || limit > SpotifyMaxTopItems {
		limit = SpotifyMaxTopItems
	}

	params := url.Values{}
	params.Set("time_range", string(timeRange))
	params.Set("limit", fmt.Sprint(limit))

	var response spotifyTopArtistsResponse
	if err := s.doRequest(ctx, http.MethodGet, "/me/top/artists?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(response.Items))
	for _, artist := range response.Items {
		if artist.Name != "" {
			names = append(names, artist.Name)
		}
	}
	return names, nil
}

func (s *SpotifyService) currentUserID(ctx context.Context) (string, error) {
	s.mu.RLock()
	id := s.userID
	s.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	user, err := s.UserProfile(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.userID = user.ID
	s.mu.Unlock()
	return user.ID, nil
}

// Search returns catalog tracks matching query in relevance order.
func (s *SpotifyService) Search(ctx context.Context, query string) ([]models.Track, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", fmt.Sprint(SpotifySearchLimit))
	if s.market != "" {
		params.Set("market", s.market)
	}

	var response spotifySearchResponse
	if err := s.doRequest(ctx, http.MethodGet, "/search?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		tracks = append(tracks, item.Model())
	}
	return tracks, nil
}

// SeveralTracks retrieves up to 50 tracks by id. The result has one entry per id, nil where the id is unknown.
func (s *SpotifyService) SeveralTracks(ctx context.Context, trackIDs []string) ([]*models.Track, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrInvalidInput)
	}
	if len(trackIDs) > SpotifyMaxSeveralTracks {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidInput, SpotifyMaxSeveralTracks)
	}

	params := url.Values{}
	params.Set("ids", strings.Join(trackIDs, ","))
	if s.market != "" {
		params.Set("market", s.market)
	}

	var response struct {
		Tracks []*SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/tracks?"+params.Encode(), nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]*models.Track, len(trackIDs))
	for i := range tracks {
		if i < len(response.Tracks) && response.Tracks[i] != nil {
			t := response.Tracks[i].Model()
			tracks[i] = &t
		}
	}
	return tracks, nil
}

// CreatePlaylist creates a playlist owned by the authenticated user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string, public bool) (*models.Playlist, error) {
	userID, err := s.currentUserID(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var created SpotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	return &models.Playlist{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
		URI:         created.URI,
		URL:         created.ExternalURLs.Spotify,
		Public:      created.Public,
	}, nil
}

// AddTracks appends uris to a playlist in order with a single request.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return fmt.Errorf("%w: no track URIs provided", shared.ErrInvalidInput)
	}
	if len(uris) > SpotifyMaxAddTracks {
		return fmt.Errorf("%w: maximum %d track URIs per request", shared.ErrInvalidInput, SpotifyMaxAddTracks)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	err := s.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"uris": uris}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %w", shared.ErrPlaylistNotFound, playlistID, err)
	}
	return err
}

// notifyingSource forwards refreshed tokens to the service's refresh callback.
type notifyingSource struct {
	base    oauth2.TokenSource
	service *SpotifyService

	mu   sync.Mutex
	last string
}

func (n *notifyingSource) Token() (*oauth2.Token, error) {
	token, err := n.base.Token()
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	changed := token.AccessToken != n.last
	n.last = token.AccessToken
	n.mu.Unlock()

	if changed {
		n.service.mu.RLock()
		fn := n.service.onRefresh
		n.service.mu.RUnlock()
		if fn != nil {
			fn(token)
		}
	}
	return token, nil
}
