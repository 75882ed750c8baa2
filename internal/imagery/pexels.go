package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chorus/internal/config"
	"chorus/internal/logging"
)

// Pexels searches the Pexels photo API.
type Pexels struct {
	client  *http.Client
	baseURL string
	apiKey  string
	perPage int
	intn    func(int) int
}

type pexelsResponse struct {
	Photos []struct {
		Src struct {
			Large    string `json:"large"`
			Original string `json:"original"`
		} `json:"src"`
	} `json:"photos"`
}

// PexelsOption customizes a Pexels searcher.
type PexelsOption func(*Pexels)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) PexelsOption {
	return func(p *Pexels) { p.client = c }
}

// WithIntn injects the random source used to pick among results.
func WithIntn(intn func(int) int) PexelsOption {
	return func(p *Pexels) { p.intn = intn }
}

// NewPexels creates a Pexels searcher from config.
func NewPexels(cfg config.PexelsConfig, opts ...PexelsOption) *Pexels {
	p := &Pexels{
		client:  &http.Client{Timeout: cfg.GetTimeout()},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		perPage: cfg.PerPage,
		intn:    rand.IntN,
	}
	if p.perPage <= 0 {
		p.perPage = 5
	}
	if !cfg.Ready() {
		p.apiKey = ""
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ready reports whether an API key is configured.
func (p *Pexels) Ready() bool {
	return p.apiKey != ""
}

// Search returns the large rendition of a random photo among the first page.
func (p *Pexels) Search(ctx context.Context, query string) (string, error) {
	timer := logging.StartTimer(logging.CategoryImagery, "PexelsSearch")
	defer timer.Stop()

	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(p.perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		logging.ImageryWarn("Pexels request for %q failed: %v", query, err)
		return "", fmt.Errorf("pexels request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.ImageryWarn("Pexels returned %s for %q", resp.Status, query)
		return "", fmt.Errorf("pexels status %d", resp.StatusCode)
	}

	var body pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("pexels decode: %w", err)
	}

	var urls []string
	for _, ph := range body.Photos {
		switch {
		case ph.Src.Large != "":
			urls = append(urls, ph.Src.Large)
		case ph.Src.Original != "":
			urls = append(urls, ph.Src.Original)
		}
	}
	if len(urls) == 0 {
		logging.Imagery("No Pexels results for %q", query)
		return "", ErrNoResults
	}
	return urls[p.intn(len(urls))], nil
}
