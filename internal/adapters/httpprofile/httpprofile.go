// Package httpprofile implements adapters.ProfileService over HTTP,
// authenticating with an OAuth2 client-credentials token the way the
// teacher application authenticates its own outbound Google API calls.
package httpprofile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/journey-engine/internal/adapters"
)

// Service fetches a user's campaign-eligibility profile from a host
// application's HTTP endpoint.
type Service struct {
	baseURL string
	client  *http.Client
}

// Config configures the OAuth2 client-credentials grant used to
// authenticate outbound requests.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	Timeout      time.Duration
}

// New builds a Service whose underlying http.Client attaches a bearer token
// obtained via the client-credentials grant, refreshed transparently by
// oauth2's token source.
func New(cfg Config) *Service {
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := ccCfg.Client(context.Background())
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.Timeout = timeout
	return &Service{baseURL: cfg.BaseURL, client: client}
}

type profileResponse struct {
	Campaigns      []string                               `json:"campaigns"`
	UserProperties map[string]any                          `json:"userProperties"`
	Experiments    map[string]adapters.ExperimentAssignment `json:"experiments"`
	Features       map[string]adapters.FeatureState         `json:"features"`
}

// FetchProfile fetches and decodes a user's profile. A transport or decode
// failure is returned to the caller, which per spec §6 treats any fetch
// failure as "no campaigns" rather than propagating it further.
func (s *Service) FetchProfile(ctx context.Context, distinctID string) (adapters.Profile, error) {
	endpoint := s.baseURL + "/profiles/" + url.PathEscape(distinctID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return adapters.Profile{}, fmt.Errorf("httpprofile: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return adapters.Profile{}, fmt.Errorf("httpprofile: fetch profile for %s: %w", distinctID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return adapters.Profile{}, fmt.Errorf("httpprofile: unexpected status %d fetching profile for %s", resp.StatusCode, distinctID)
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return adapters.Profile{}, fmt.Errorf("httpprofile: decode profile for %s: %w", distinctID, err)
	}

	return adapters.Profile{
		Campaigns:      body.Campaigns,
		UserProperties: body.UserProperties,
		Experiments:    body.Experiments,
		Features:       body.Features,
	}, nil
}
