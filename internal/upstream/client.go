package upstream

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/wsuscatalog/wsuscatalog/internal/cab"
	"github.com/wsuscatalog/wsuscatalog/internal/catalogerr"
	"github.com/wsuscatalog/wsuscatalog/internal/identity"
	"github.com/wsuscatalog/wsuscatalog/internal/xmlmeta"
)

// Client is the upstream ServerSync SOAP client: it
// authenticates once (caching the result until near expiry), discovers the
// server's batch ceiling, and exposes revision-ID pagination and batched
// metadata fetch on top.
type Client struct {
	t   *transport
	cab cab.Bridge

	accountName string
	accountGUID string

	mu    sync.Mutex
	token *accessToken
	cfg   *ConfigData
}

// Option configures a Client at construction.
type Option func(*Client)

// WithCabBridge overrides the default exec-based CAB bridge, mainly for
// tests that want to stub decompression.
func WithCabBridge(b cab.Bridge) Option {
	return func(c *Client) { c.cab = b }
}

// New builds a Client against endpoint using the given account identity
// and timeout/retry policy.
func New(endpoint, accountName, accountGUID string, sendTimeout, receiveTimeout time.Duration, retryAttempts int, retrySleep time.Duration, opts ...Option) *Client {
	c := &Client{
		t:           newTransport(endpoint, sendTimeout, receiveTimeout, retryAttempts, retrySleep),
		cab:         cab.NewExecBridge(""),
		accountName: accountName,
		accountGUID: accountGUID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate performs the DSS cookie exchange, reusing a cached token if it is not within 2 minutes of
// expiring.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	if !c.token.expiringSoon(time.Now()) {
		return nil
	}

	var authConfigResp getAuthConfigResponse
	if err := c.t.call(ctx, "GetAuthConfig", getAuthConfigRequest{}, &authConfigResp); err != nil {
		return fmt.Errorf("upstream: GetAuthConfig: %w", err)
	}

	var dss wireAuthPlugin
	found := false
	for _, p := range authConfigResp.Plugins {
		if p.ID == "DssTargeting" || p.ID == "DSS" {
			dss = p
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("upstream: no DSS auth plugin advertised")
	}

	var authCookieResp dssGetAuthorizationCookieResponse
	authReq := dssGetAuthorizationCookieRequest{AccountName: c.accountName, AccountGUID: c.accountGUID}
	if err := c.t.call(ctx, "GetAuthorizationCookie", authReq, &authCookieResp); err != nil {
		return fmt.Errorf("upstream: GetAuthorizationCookie: %w", err)
	}

	var cookieResp getCookieResponse
	cookieReq := getCookieRequest{AuthCookie: authCookieResp.Cookie}
	if err := c.t.call(ctx, "GetCookie", cookieReq, &cookieResp); err != nil {
		return fmt.Errorf("upstream: GetCookie: %w", err)
	}

	expiration := time.Now().Add(8 * time.Hour)
	if cookieResp.Expiration != "" {
		if parsed, err := time.Parse(time.RFC3339, cookieResp.Expiration); err == nil {
			expiration = parsed
		}
	}

	c.token = &accessToken{
		plugin:       AuthPlugin{ID: dss.ID, ServiceURL: dss.ServiceURL},
		authCookie:   authCookieResp.Cookie,
		accessCookie: cookieResp.Cookie,
		expiration:   expiration,
	}
	return nil
}

func (c *Client) accessCookie(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return c.token.accessCookie, nil
}

// Config fetches the server's batch ceiling; subsequent calls within the
// process reuse the cached value.
func (c *Client) Config(ctx context.Context) (ConfigData, error) {
	c.mu.Lock()
	if c.cfg != nil {
		defer c.mu.Unlock()
		return *c.cfg, nil
	}
	c.mu.Unlock()

	cookie, err := c.accessCookie(ctx)
	if err != nil {
		return ConfigData{}, err
	}
	var resp getConfigDataResponse
	req := getConfigDataRequest{AccessCookie: cookie}
	if err := c.t.call(ctx, "GetConfigData", req, &resp); err != nil {
		return ConfigData{}, fmt.Errorf("upstream: GetConfigData: %w", err)
	}

	cfg := ConfigData{MaxNumberOfUpdatesPerRequest: resp.MaxUpdates, ProtocolVersion: resp.ProtocolVersion}
	c.mu.Lock()
	c.cfg = &cfg
	c.mu.Unlock()
	return cfg, nil
}

// RevisionIDs resolves identities for categories (filter.GetConfig==true)
// or for the product/classification scope of filter otherwise.
func (c *Client) RevisionIDs(ctx context.Context, filter ServerSyncFilter) (RevisionIDList, error) {
	cookie, err := c.accessCookie(ctx)
	if err != nil {
		return RevisionIDList{}, err
	}

	wire := wireFilter{GetConfig: filter.GetConfig, Anchor: filter.Anchor}
	for _, id := range filter.Products {
		wire.Products = append(wire.Products, id.String())
	}
	for _, id := range filter.Classifications {
		wire.Classifications = append(wire.Classifications, id.String())
	}

	var resp getRevisionIdListResponse
	req := getRevisionIdListRequest{AccessCookie: cookie, Filter: wire}
	if err := c.t.call(ctx, "GetRevisionIdList", req, &resp); err != nil {
		return RevisionIDList{}, fmt.Errorf("upstream: GetRevisionIdList: %w", err)
	}

	out := RevisionIDList{Anchor: resp.Anchor}
	for _, r := range resp.NewRevisions {
		id, err := identity.GUIDFromString(r.UpdateID)
		if err != nil {
			return RevisionIDList{}, fmt.Errorf("upstream: bad revision UpdateID %q: %w", r.UpdateID, err)
		}
		out.NewRevisions = append(out.NewRevisions, RevisionID{UpdateID: id, Revision: r.Revision})
	}
	return out, nil
}

// UpdateData fetches the XML metadata for ids, decompressing any
// CAB-packed blobs via the configured cab.Bridge and normalizing the
// batch's file-URL table. len(ids) must not
// exceed the server's MaxNumberOfUpdatesPerRequest; callers (internal/
// sources) are responsible for chunking.
func (c *Client) UpdateData(ctx context.Context, ids []RevisionID) (UpdateDataResult, error) {
	c.mu.Lock()
	if c.cfg != nil && c.cfg.MaxNumberOfUpdatesPerRequest > 0 && len(ids) > c.cfg.MaxNumberOfUpdatesPerRequest {
		c.mu.Unlock()
		return UpdateDataResult{}, fmt.Errorf("upstream: %d ids exceeds server limit %d: %w",
			len(ids), c.cfg.MaxNumberOfUpdatesPerRequest, catalogerr.ErrRequestTooLarge)
	}
	c.mu.Unlock()

	cookie, err := c.accessCookie(ctx)
	if err != nil {
		return UpdateDataResult{}, err
	}

	wireIDs := make([]wireRevisionID, len(ids))
	for i, id := range ids {
		wireIDs[i] = wireRevisionID{UpdateID: id.UpdateID.String(), Revision: id.Revision}
	}

	var resp getUpdateDataResponse
	req := getUpdateDataRequest{AccessCookie: cookie, RevisionIDs: wireIDs}
	if err := c.t.call(ctx, "GetUpdateData", req, &resp); err != nil {
		return UpdateDataResult{}, fmt.Errorf("upstream: GetUpdateData: %w", err)
	}

	result := UpdateDataResult{URLTable: make(xmlmeta.URLTable, len(resp.FileURLs))}
	for _, u := range resp.FileURLs {
		result.URLTable[u.Digest] = xmlmeta.SourceURLs{MU: u.MU, USS: u.USS}
	}

	for _, u := range resp.Updates {
		id, err := identity.GUIDFromString(u.UpdateID)
		if err != nil {
			return UpdateDataResult{}, fmt.Errorf("upstream: bad update id %q: %w", u.UpdateID, err)
		}
		xmlBytes := u.XMLData
		if u.IsCompressed {
			// A compressed blob is binary cabinet data, carried base64-encoded
			// inside the Xml element; plain-text XML arrives as escaped chardata.
			cabBytes, err := base64.StdEncoding.DecodeString(string(xmlBytes))
			if err != nil {
				return UpdateDataResult{}, fmt.Errorf("upstream: decode cab blob %s@%d: %w", id, u.Revision, err)
			}
			decompressed, err := c.cab.Decompress(ctx, cabBytes)
			if err != nil {
				return UpdateDataResult{}, fmt.Errorf("upstream: decompress %s@%d: %w", id, u.Revision, err)
			}
			gunzipped, err := cab.GunzipXML(decompressed)
			if err != nil {
				return UpdateDataResult{}, fmt.Errorf("upstream: gunzip %s@%d: %w", id, u.Revision, err)
			}
			xmlBytes = gunzipped
		}
		result.Updates = append(result.Updates, UpdateBlob{
			ID:  RevisionID{UpdateID: id, Revision: u.Revision},
			XML: xmlBytes,
		})
	}
	return result, nil
}
