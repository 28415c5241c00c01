package ogc

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
)

const WFSVersion = "1.1.0"

func OWSEndpoint(geoServerBase string) string {
	return strings.TrimRight(geoServerBase, "/") + "/ows"
}

// GetFeatureParams requests every feature of typeName; an empty outputFormat leaves the server default.
func GetFeatureParams(typeName, outputFormat string) url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", WFSVersion)
	params.Set("request", "GetFeature")
	params.Set("typeName", typeName)
	if strings.TrimSpace(outputFormat) != "" {
		params.Set("outputFormat", outputFormat)
	}
	return params
}

// CapabilitiesURL replaces any service, request and version parameters of base with a
// GetCapabilities request for the given service and version.
func CapabilitiesURL(base, service, version string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", apperr.New(apperr.KindInvalidRequest, "invalid service url %q", base)
	}
	q := u.Query()
	for k := range q {
		switch strings.ToLower(k) {
		case "service", "request", "version":
			q.Del(k)
		}
	}
	q.Set("service", service)
	q.Set("request", "GetCapabilities")
	q.Set("version", version)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// OutputFormats reads the GetFeature outputFormat values of a WFS 1.1.0 capabilities document.
func OutputFormats(root *etree.Element) []string {
	var out []string
	for _, op := range FindAll(root, "OperationsMetadata/Operation") {
		if Attr(op, "name") != "GetFeature" {
			continue
		}
		for _, p := range Children(op, "Parameter") {
			if Attr(p, "name") != "outputFormat" {
				continue
			}
			for _, v := range Children(p, "Value") {
				if t := Text(v); t != "" {
					out = append(out, t)
				}
			}
		}
	}
	return out
}

// FetchOutputFormats loads the capabilities of a WFS endpoint and lists its GetFeature formats.
func FetchOutputFormats(ctx context.Context, c *http.Client, wfsURL string) ([]string, error) {
	capURL, err := CapabilitiesURL(wfsURL, "WFS", WFSVersion)
	if err != nil {
		return nil, err
	}
	resp, err := Get(ctx, c, capURL, "wfs", "GetCapabilities")
	if err != nil {
		return nil, err
	}
	root, err := Parse(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemoteService, err, "wfs capabilities")
	}
	if msg, ok := ExceptionText(root); ok {
		return nil, apperr.New(apperr.KindRemoteService, "%s", msg)
	}
	return OutputFormats(root), nil
}
