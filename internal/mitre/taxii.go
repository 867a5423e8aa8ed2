// Package mitre syncs the ATT&CK knowledge base from the MITRE TAXII 2.1
// server: a paginating TAXII client, a pure STIX parser, the sync service
// that persists what the parser produced, and the vulnerability mapper that
// ties organization vulnerabilities back to techniques and actors.
package mitre

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vantran-sec/threatsync/internal/config"
	"github.com/vantran-sec/threatsync/internal/outbound"
)

// ErrNoAPIRoots is returned when TAXII discovery succeeds but advertises
// nothing to fetch from.
var ErrNoAPIRoots = errors.New("MITRE TAXII discovery returned no API roots")

const taxiiAccept = "application/taxii+json;version=2.1"

// TAXIIClient fetches collection objects from the MITRE TAXII server. The
// ATT&CK server is slow and aggressively rate-limited, so per-request floors
// override any tighter ingestion settings.
type TAXIIClient struct {
	cfg    *config.Config
	client *outbound.Client
	// pageDelay overrides the inter-page wait in tests.
	pageDelay time.Duration
}

// NewTAXIIClient builds the TAXII client.
func NewTAXIIClient(cfg *config.Config, client *outbound.Client) *TAXIIClient {
	return &TAXIIClient{cfg: cfg, client: client}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (c *TAXIIClient) request(target string) outbound.Request {
	return outbound.Request{
		URL:         target,
		Headers:     map[string]string{"Accept": taxiiAccept},
		Timeout:     maxDuration(c.cfg.Ingestion.Timeout, 30*time.Second),
		MaxRetries:  maxInt(c.cfg.Ingestion.MaxRetries, 6),
		BaseBackoff: maxDuration(c.cfg.Ingestion.BaseBackoff, 1500*time.Millisecond),
	}
}

func (c *TAXIIClient) delayBetweenPages(ctx context.Context) error {
	wait := c.pageDelay
	if wait == 0 {
		wait = maxDuration(500*time.Millisecond, c.cfg.Ingestion.BaseBackoff)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

type taxiiDiscovery struct {
	APIRoots []string `json:"api_roots"`
	Default  string   `json:"default"`
}

type taxiiObjectsPage struct {
	Objects []any  `json:"objects"`
	More    bool   `json:"more"`
	Next    string `json:"next"`
}

// DiscoverAPIRoot returns the server's preferred API root path, favoring the
// advertised default over the first listed root.
func (c *TAXIIClient) DiscoverAPIRoot(ctx context.Context) (string, error) {
	var discovery taxiiDiscovery
	if err := c.client.FetchJSON(ctx, c.request(c.cfg.MITRE.TaxiiDiscoveryURL), &discovery); err != nil {
		return "", fmt.Errorf("TAXII discovery: %w", err)
	}

	if discovery.Default != "" {
		return discovery.Default, nil
	}
	if len(discovery.APIRoots) > 0 {
		return discovery.APIRoots[0], nil
	}
	return "", ErrNoAPIRoots
}

// FetchCollectionObjects pages through a collection and returns every raw
// STIX object. addedAfter narrows the fetch to objects added since the last
// checkpoint; empty means a full pull. A zero limit defaults to 500.
func (c *TAXIIClient) FetchCollectionObjects(ctx context.Context, collectionID, addedAfter string, limit int) ([]any, error) {
	if limit <= 0 {
		limit = 500
	}

	rootPath, err := c.DiscoverAPIRoot(ctx)
	if err != nil {
		return nil, err
	}

	discoveryURL, err := url.Parse(c.cfg.MITRE.TaxiiDiscoveryURL)
	if err != nil {
		return nil, fmt.Errorf("parsing TAXII discovery URL: %w", err)
	}
	apiRoot := fmt.Sprintf("%s://%s%s", discoveryURL.Scheme, discoveryURL.Host, rootPath)
	for len(apiRoot) > 0 && apiRoot[len(apiRoot)-1] == '/' {
		apiRoot = apiRoot[:len(apiRoot)-1]
	}

	var objects []any
	next := ""

	for {
		target, err := url.Parse(fmt.Sprintf("%s/collections/%s/objects/", apiRoot, collectionID))
		if err != nil {
			return nil, fmt.Errorf("building collection URL: %w", err)
		}
		query := target.Query()
		query.Set("limit", fmt.Sprintf("%d", limit))
		if addedAfter != "" {
			query.Set("added_after", addedAfter)
		}
		if next != "" {
			query.Set("next", next)
		}
		target.RawQuery = query.Encode()

		var page taxiiObjectsPage
		if err := c.client.FetchJSON(ctx, c.request(target.String()), &page); err != nil {
			return nil, fmt.Errorf("fetching collection page: %w", err)
		}

		objects = append(objects, page.Objects...)

		if !page.More || page.Next == "" {
			return objects, nil
		}

		if err := c.delayBetweenPages(ctx); err != nil {
			return nil, err
		}
		next = page.Next
	}
}
