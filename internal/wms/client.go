package wms

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
	"github.com/mohammed-shakir/geoportal/internal/core/httpclient"
	"github.com/mohammed-shakir/geoportal/internal/core/ogc"
)

const upstream = "wms"

type Options struct {
	// Timeout bounds every remote request.
	Timeout time.Duration
	// Version requested from servers; only 1.1.1 is accepted.
	Version string
	// HTTPClient overrides the default client, which skips TLS verification.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to remote WMS 1.1.1 servers. Capabilities are fetched again for every call.
type Client struct {
	http    *http.Client
	timeout time.Duration
	version string
	logger  *slog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpclient.NewOutbound(httpclient.Options{Timeout: opts.Timeout, InsecureSkipVerify: true})
	}
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	if opts.Version == "" {
		opts.Version = Version
	}
	return &Client{http: hc, timeout: opts.Timeout, version: opts.Version, logger: l}
}

// BaseURL drops the query and fragment of a service URL.
func BaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.New(apperr.KindInvalidRequest, "invalid service url %q", raw)
	}
	u.RawQuery, u.Fragment, u.RawFragment = "", "", ""
	return u.String(), nil
}

// Capabilities fetches and parses the capabilities document of serviceURL.
func (c *Client) Capabilities(ctx context.Context, serviceURL, version string) (*Capabilities, error) {
	if version != Version {
		return nil, apperr.New(apperr.KindUnsupportedVersion, "wms version %q is not supported, use %s", version, Version)
	}
	capURL, err := ogc.CapabilitiesURL(serviceURL, "WMS", Version)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := ogc.Get(ctx, c.http, capURL, upstream, "GetCapabilities")
	if err != nil {
		return nil, err
	}
	caps, err := ParseCapabilities(resp.Body, version)
	if err != nil {
		return nil, err
	}
	for _, w := range caps.Warnings {
		c.logger.WarnContext(ctx, "capabilities", "url", serviceURL, "warning", w)
	}
	return caps, nil
}

// GetMap renders r against the advertised GetMap endpoint, or serviceURL if none is advertised.
func (c *Client) GetMap(ctx context.Context, serviceURL string, r MapRequest) (ogc.Response, error) {
	v, err := BuildGetMap(r)
	if err != nil {
		return ogc.Response{}, err
	}
	base, err := BaseURL(serviceURL)
	if err != nil {
		return ogc.Response{}, err
	}
	caps, err := c.Capabilities(ctx, base, c.version)
	if err != nil {
		return ogc.Response{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return ogc.Get(ctx, c.http, RequestURL(endpoint(caps, "GetMap", base), v), upstream, "GetMap")
}

// FeatureInfo queries a pixel and decodes the HTML answer.
func (c *Client) FeatureInfo(ctx context.Context, serviceURL string, r FeatureInfoRequest) ([]FeatureInfo, error) {
	if r.InfoFormat == "" {
		r.InfoFormat = DefaultInfoFormat
	}
	v, err := BuildGetFeatureInfo(r)
	if err != nil {
		return nil, err
	}
	base, err := BaseURL(serviceURL)
	if err != nil {
		return nil, err
	}
	caps, err := c.Capabilities(ctx, base, c.version)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := ogc.Get(ctx, c.http, RequestURL(endpoint(caps, "GetFeatureInfo", base), v), upstream, "GetFeatureInfo")
	if err != nil {
		return nil, err
	}
	src := SourceFor(base)
	out, err := DecodeFeatureInfo(resp.Body, src)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteService, err, "feature info")
	}
	c.logger.DebugContext(ctx, "feature info decoded", "url", base, "source", src.String(), "records", len(out))
	return out, nil
}

// Info describes the queryable layers of serviceURL.
func (c *Client) Info(ctx context.Context, serviceURL string) (ServiceInfo, error) {
	base, err := BaseURL(serviceURL)
	if err != nil {
		return ServiceInfo{}, err
	}
	caps, err := c.Capabilities(ctx, base, c.version)
	if err != nil {
		return ServiceInfo{}, err
	}
	return Describe(caps, base), nil
}

func endpoint(caps *Capabilities, op, fallback string) string {
	if u := caps.OperationURL(op, "Get"); u != "" {
		return u
	}
	return fallback
}
