package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	eoserrors "github.com/footley/eos-bot/pkg/errors"
	"github.com/footley/eos-bot/pkg/page"
)

// SessionConfig configures a game Session.
type SessionConfig struct {
	Username  string
	Password  string
	LoginURL  string
	HomeURL   string
	Pacing    time.Duration
	Timeout   time.Duration
	UserAgent string
	Logger    *zerolog.Logger
}

// Session is the logged-in browser of one run. It owns the cookie jar, the
// listing page cache and the request counter; it is created at run start and
// discarded at run end. A Session is not safe for concurrent use.
type Session struct {
	client    *http.Client
	cfg       SessionConfig
	logger    zerolog.Logger
	cache     map[string][]byte
	requests  int
	sleep     func(context.Context, time.Duration) error
	userAgent string
}

// NewSession creates a session with an empty cookie jar.
func NewSession(cfg SessionConfig) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "eos-bot/1.0"
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Session{
		client:    &http.Client{Timeout: timeout, Jar: jar},
		cfg:       cfg,
		logger:    logger.With().Str("component", "session").Logger(),
		cache:     make(map[string][]byte),
		sleep:     sleepContext,
		userAgent: ua,
	}, nil
}

// Requests is the number of network round trips issued so far.
func (s *Session) Requests() int {
	return s.requests
}

// Fetch returns the body of rawURL. A non-nil form is POSTed url-encoded.
// With cached set, an identical earlier request is answered from memory
// without pacing or counting. Every real round trip waits the pacing delay
// first.
func (s *Session) Fetch(ctx context.Context, rawURL string, form url.Values, cached bool) ([]byte, error) {
	key := rawURL + "$$" + form.Encode()
	if cached {
		if body, ok := s.cache[key]; ok {
			return body, nil
		}
	}

	s.requests++
	if err := s.sleep(ctx, s.cfg.Pacing); err != nil {
		return nil, err
	}

	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	s.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Int("request", s.requests).
		Msg("fetched")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request %s: http status %d", rawURL, resp.StatusCode)
	}

	if cached {
		s.cache[key] = body
	}
	return body, nil
}

// Document fetches rawURL and parses it as a rendered page.
func (s *Session) Document(ctx context.Context, rawURL string, form url.Values, cached bool) (*page.Document, error) {
	body, err := s.Fetch(ctx, rawURL, form, cached)
	if err != nil {
		return nil, err
	}
	doc, err := page.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}
	return doc, nil
}

// Visit issues a fire-and-forget action; the response body is ignored.
func (s *Session) Visit(ctx context.Context, rawURL string, form url.Values) error {
	_, err := s.Fetch(ctx, rawURL, form, false)
	return err
}

// Login validates the credentials. The game answers a bare "OK" on success,
// after which the home page must be loaded to activate the session.
func (s *Session) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", s.cfg.Username)
	form.Set("password", s.cfg.Password)
	form.Set("nocache", strconv.FormatFloat(rand.Float64(), 'f', -1, 64))

	body, err := s.Fetch(ctx, s.cfg.LoginURL, form, false)
	if err != nil {
		return eoserrors.NewAuthError(s.cfg.Username, err)
	}
	if strings.TrimSpace(string(body)) != "OK" {
		return eoserrors.NewAuthError(s.cfg.Username, errors.New("credentials rejected"))
	}
	if _, err := s.Fetch(ctx, s.cfg.HomeURL, nil, false); err != nil {
		return eoserrors.NewAuthError(s.cfg.Username, err)
	}
	s.logger.Info().Str("user", s.cfg.Username).Msg("successfully logged in")
	return nil
}

// Authenticate restores cookies from cookiePath (if any), logs in and saves
// the refreshed cookies back.
func (s *Session) Authenticate(ctx context.Context, cookiePath string) error {
	if err := s.LoadCookies(cookiePath); err != nil {
		s.logger.Warn().Err(err).Str("file", cookiePath).Msg("ignoring stored cookies")
	}
	if err := s.Login(ctx); err != nil {
		return err
	}
	if err := s.SaveCookies(cookiePath); err != nil {
		s.logger.Warn().Err(err).Str("file", cookiePath).Msg("failed to save cookies")
	}
	return nil
}

// =============================================================================
// COOKIE PERSISTENCE
// =============================================================================

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// SaveCookies writes the cookies the jar holds for the login host.
func (s *Session) SaveCookies(path string) error {
	u, err := url.Parse(s.cfg.LoginURL)
	if err != nil {
		return err
	}
	cookies := s.client.Jar.Cookies(u)
	out := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, storedCookie{Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain, Expires: c.Expires})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadCookies restores cookies saved by SaveCookies. A missing file is not an error.
func (s *Session) LoadCookies(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to decode cookies: %w", err)
	}
	u, err := url.Parse(s.cfg.LoginURL)
	if err != nil {
		return err
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path, Expires: c.Expires})
	}
	s.client.Jar.SetCookies(u, cookies)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
