package graph

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// Dispatchable is the wire form of the dispatchable set.  Keys of
// Pkgs are platform tags.
type Dispatchable struct {
	Pkgs     map[string][]string
	Revision string
}

// ByPlatform re-keys the dispatchable set by platform.
func (d *Dispatchable) ByPlatform() map[types.Platform][]string {
	out := make(map[types.Platform][]string, len(d.Pkgs))
	for tag, list := range d.Pkgs {
		out[types.PlatformFromTag(tag)] = list
	}
	return out
}

// APIClient talks to a graph manager over HTTP.
type APIClient struct {
	l       hclog.Logger
	hClient *http.Client

	// URL is the base of the graph API, such as
	// http://localhost:8080/api/graph
	URL string
}

// NewAPIClient creates a new API client.
func NewAPIClient(l hclog.Logger, url string) *APIClient {
	x := APIClient{
		l:       l.Named("client"),
		hClient: &http.Client{Timeout: 30 * time.Second},
		URL:     strings.TrimSuffix(url, "/"),
	}
	return &x
}

// General function to receive a response.  Non 2xx responses are
// turned into errors carrying the server's error text.
func (c *APIClient) do(ctx context.Context, method, endpoint string) ([]byte, error) {
	if c.URL == "" {
		return nil, errors.New("graph API url not set")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hClient.Do(req)
	if err != nil {
		c.l.Warn("Unable to receive from API", "endpoint", endpoint, "method", method, "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	// No API results are massive.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		var errText struct{ Error string }
		json.Unmarshal(body, &errText)
		if errText.Error == "" {
			errText.Error = resp.Status
		}
		return nil, errors.Errorf("%s %s: %s", method, endpoint, errText.Error)
	}
	return body, nil
}

// Clean asks the manager to reload indexes and clean a platform.
func (c *APIClient) Clean(ctx context.Context, tag string) error {
	_, err := c.do(ctx, http.MethodPost, "/clean/"+tag)
	return err
}

// SyncTo asks the manager to move to a tap revision.
func (c *APIClient) SyncTo(ctx context.Context, rev string) error {
	_, err := c.do(ctx, http.MethodPost, "/syncto/"+rev)
	return err
}

// Fail marks a package failed on a platform.
func (c *APIClient) Fail(ctx context.Context, tag, pkg string) error {
	_, err := c.do(ctx, http.MethodPost, "/pkgs/"+tag+"/"+pkg+"/fail")
	return err
}

// GetDispatchable retrieves the dispatchable set.
func (c *APIClient) GetDispatchable(ctx context.Context) (*Dispatchable, error) {
	body, err := c.do(ctx, http.MethodGet, "/dispatchable")
	if err != nil {
		return nil, err
	}
	data := new(Dispatchable)
	if err := json.Unmarshal(body, data); err != nil {
		c.l.Warn("Error unmarshalling dispatchable", "err", err)
		return nil, err
	}
	return data, nil
}
