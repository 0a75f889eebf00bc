package expander

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/expanse-labs/expander-go/internal/httpclient"
	"github.com/expanse-labs/expander-go/internal/rate"
)

const (
	exposuresPath    = "/api/v2/exposures/ip-ports"
	eventsPath       = "/api/v1/events"
	cloudAssetsPath  = "/api/v1/assets/cloud/ips"
	onPremAssetsPath = "/api/v1/assets/onprem/ips"
)

// Client wraps the Expander resource endpoints. All listings are paginated;
// the returned Pages iterator pulls one page per NextPage call.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewClient constructs an Expander client on top of an authorized executor.
func NewClient(logger *zap.Logger, exec *httpclient.Executor, baseURL string) *Client {
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
	}
}

// NewDefaultClient wires the executor with its own HTTP client and rate
// manager, for callers that do not need to share them.
func NewDefaultClient(logger *zap.Logger, tokens httpclient.TokenSource, baseURL string, timeout time.Duration, retryOn401 bool, rateCfg rate.Config) *Client {
	rateMgr := rate.NewManager(rateCfg)
	exec := httpclient.New(logger, rateMgr, &http.Client{Timeout: timeout}, tokens, retryOn401)
	return NewClient(logger, exec, baseURL)
}

// Executor exposes the underlying executor for one-off calls.
func (c *Client) Executor() *httpclient.Executor {
	return c.exec
}

// ListExposures iterates the exposed IP/port listing.
// GET /api/v2/exposures/ip-ports
func (c *Client) ListExposures(p ExposureParams) *Pages[Exposure] {
	return newPages[Exposure](c.exec, c.baseURL+exposuresPath, p.Values(), "exposures")
}

// ListEvents iterates appearance events for a validated date window.
// GET /api/v1/events
func (c *Client) ListEvents(p EventParams) (*Pages[Event], error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return newPages[Event](c.exec, c.baseURL+eventsPath, p.Values(), "events"), nil
}

// ListCloudAssets iterates IPs observed in cloud address space.
// GET /api/v1/assets/cloud/ips
func (c *Client) ListCloudAssets(p AssetParams) *Pages[CloudAsset] {
	return newPages[CloudAsset](c.exec, c.baseURL+cloudAssetsPath, p.Values(), "cloud_assets")
}

// ListOnPremAssets iterates IPs observed in on-premise address space.
// GET /api/v1/assets/onprem/ips
func (c *Client) ListOnPremAssets(p AssetParams) *Pages[OnPremAsset] {
	return newPages[OnPremAsset](c.exec, c.baseURL+onPremAssetsPath, p.Values(), "onprem_assets")
}
