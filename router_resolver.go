package ddns

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const (
	routerPort        = "49000"
	routerControlPath = "/igdupnp/control/WANIPConn1"
	routerService     = "urn:schemas-upnp-org:service:WANIPConnection:1"
)

// errRouterNoAddress means the router answered without an address for the requested family.
var errRouterNoAddress = errors.New("router reported no address")

// RouterResolver constructs a resolver that asks a FRITZ!Box (or another router speaking the
// AVM flavour of the UPnP WANIPConnection service) for its external address of the given family.
//
// host is a hostname or IP; the control port 49000 is used unless host carries a port.
func RouterResolver(host string, version IPVersion) Resolver {
	return &routerResolver{host: host, version: version, logger: discard}
}

type routerResolver struct {
	host       string
	version    IPVersion
	httpClient *http.Client
	logger     *slog.Logger
}

func (rr *routerResolver) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = discard
	}
	rr.logger = logger
}

func (rr *routerResolver) SetHTTPClient(c *http.Client) {
	rr.httpClient = c
}

func (rr *routerResolver) action() (action, field string) {
	if rr.version == IPv6 {
		return "X_AVM_DE_GetExternalIPv6Address", "NewExternalIPv6Address"
	}
	return "GetExternalIPAddress", "NewExternalIPAddress"
}

func (rr *routerResolver) controlURL() string {
	host := rr.host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(strings.Trim(host, "[]"), routerPort)
	}
	return "http://" + host + routerControlPath
}

// Resolve implements ddns.Resolver.
func (rr *routerResolver) Resolve(ctx context.Context) ([]netip.Addr, error) {
	action, field := rr.action()
	envelope := `<?xml version="1.0" encoding="utf-8"?>` +
		`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">` +
		`<s:Body><u:` + action + ` xmlns:u="` + routerService + `" /></s:Body></s:Envelope>`

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rr.controlURL(), strings.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", routerService+"#"+action)

	httpclient := rr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error reaching router %s: %w", rr.host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("router %s returned %s", rr.host, resp.Status)
	}

	value, err := findElement(resp.Body, field)
	if err != nil {
		return nil, fmt.Errorf("error reading %s from router response: %w", field, err)
	}
	if value == "" {
		return nil, fmt.Errorf("%w: %s is empty", errRouterNoAddress, field)
	}
	rr.logger.Debug("router reported address", "host", rr.host, "version", rr.version.String(), "address", value)
	ip, err := parseAddr(value)
	if err != nil {
		return nil, err
	}
	return []netip.Addr{ip}, nil
}

// findElement returns the text of the first element named local, ignoring namespaces.
func findElement(r io.Reader, local string) (string, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("element %s not found", local)
		}
		if err != nil {
			return "", err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != local {
			continue
		}
		var v string
		if err := dec.DecodeElement(&v, &se); err != nil {
			return "", err
		}
		return strings.TrimSpace(v), nil
	}
}
