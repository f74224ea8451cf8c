package tools

import (
	"fmt"
	"net/http"
	"time"
)

// Config locates the services behind the network tools.
type Config struct {
	RATPBaseURL    string
	WeatherBaseURL string
	MapsBaseURL    string
	MapsAPIKey     string
	SiteBaseURL    string
	Timeout        time.Duration

	// HTTPClient overrides the SSRF-safe client built from Timeout.
	HTTPClient *http.Client
}

// NewDefaultRegistry registers every tool kind. desk backs the booking
// tools; a nil desk gets a fresh one.
func NewDefaultRegistry(cfg Config, desk *Desk, opts ...RegistryOption) (*Registry, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}
	if desk == nil {
		desk = NewDesk()
	}

	site, err := NewSiteInfo(cfg.SiteBaseURL, client)
	if err != nil {
		return nil, err
	}

	var all []*Tool
	for _, build := range []func() (*Tool, error){
		NewTransit(cfg.RATPBaseURL, client).tool,
		NewWeather(cfg.WeatherBaseURL, client).tool,
		NewRoutes(cfg.MapsBaseURL, cfg.MapsAPIKey, client).tool,
		site.tool,
	} {
		t, err := build()
		if err != nil {
			return nil, err
		}
		all = append(all, t)
	}
	booking, err := desk.tools()
	if err != nil {
		return nil, err
	}
	all = append(all, booking...)

	r := NewRegistry(opts...)
	for _, t := range all {
		if err := r.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Kind, err)
		}
	}
	return r, nil
}
