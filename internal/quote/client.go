// Package quote drives the multi-step session against the remote lending
// authority and turns its replies into authoritative quotes and city lists.
package quote

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/cities"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/pkg/dwr"
)

// Client defines the remote lending authority operations.
type Client interface {
	// Simulate runs a full session and returns the authority's quote.
	Simulate(ctx context.Context, params model.SimulationParameters) (*model.AuthoritativeQuote, error)
	// Cities returns the cities of a region, sorted by name.
	Cities(ctx context.Context, regionCode string) ([]model.CityOption, error)
}

// Config describes the remote application.
type Config struct {
	BaseURL         string
	EntryPath       string
	EligibilityPath string
	SimulatePath    string
	CitiesPath      string
	PagePath        string
	UserAgent       string
	VersionTag      string
	Timeout         time.Duration
	RatePerSec      float64
	Burst           int
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://www8.caixa.gov.br/siopiinternet-web",
		EntryPath:       "/simulaOperacaoInternet.do?method=inicializarCasoUso",
		EligibilityPath: "/simulaOperacaoInternet.do?method=enquadrarProdutos",
		SimulatePath:    "/dwr/call/plaincall/SimuladorAjax.simular.dwr",
		CitiesPath:      "/dwr/call/plaincall/CidadeAjax.listarCidades.dwr",
		PagePath:        "/siopiinternet-web/simulaOperacaoInternet.do?method=inicializarCasoUso",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		VersionTag:      "201505",
		Timeout:         20 * time.Second,
		RatePerSec:      1,
		Burst:           3,
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client. Redirect handling is always
// replaced so hops stay under session control.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithCache sets the city cache. Default: a private in-memory cache.
func WithCache(cache cities.Cache) Option {
	return func(c *httpClient) {
		c.cache = cache
	}
}

// WithLimiter overrides the outbound session limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

type httpClient struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	cache   cities.Cache
	limiter *rate.Limiter
	encoder *dwr.Encoder
}

// NewClient creates a client for the remote described by cfg. Zero fields
// of cfg fall back to DefaultConfig.
func NewClient(cfg Config, opts ...Option) (Client, error) {
	cfg = withDefaults(cfg)
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "quote: parse base url %q", cfg.BaseURL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("quote: base url %q must be absolute", cfg.BaseURL)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	c := &httpClient{
		cfg:  cfg,
		base: base,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:   cities.NewMemory(),
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		encoder: dwr.NewEncoder(cfg.PagePath),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.http
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	hc.Jar = nil
	c.http = &hc

	return c, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.EntryPath == "" {
		cfg.EntryPath = def.EntryPath
	}
	if cfg.EligibilityPath == "" {
		cfg.EligibilityPath = def.EligibilityPath
	}
	if cfg.SimulatePath == "" {
		cfg.SimulatePath = def.SimulatePath
	}
	if cfg.CitiesPath == "" {
		cfg.CitiesPath = def.CitiesPath
	}
	if cfg.PagePath == "" {
		cfg.PagePath = def.PagePath
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.VersionTag == "" {
		cfg.VersionTag = def.VersionTag
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return cfg
}

// origin returns scheme://host of the remote.
func (c *httpClient) origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// sameOrigin compares scheme, host and port, case-insensitively and with
// default ports filled in.
func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

func (c *httpClient) endpoint(path string) string {
	return c.cfg.BaseURL + path
}

// newSession starts a session with a fresh jar once the limiter allows it.
func (c *httpClient) newSession(ctx context.Context) (*session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, limiterError(ctx, err)
	}
	return &session{client: c, jar: NewJar()}, nil
}
