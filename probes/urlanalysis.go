package probes

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
)

type AddressType string

const (
	AddressTypeIPv4     AddressType = "IPv4"
	AddressTypeIPv6     AddressType = "IPv6"
	AddressTypeHostname AddressType = "Hostname"
)

const (
	DefaultDNSTimeout  = 5 * time.Second
	DefaultPingTimeout = 3 * time.Second
)

var defaultPorts = map[string]int{
	"http":   80,
	"https":  443,
	"ws":     80,
	"wss":    443,
	"ftp":    21,
	"ssh":    22,
	"telnet": 23,
	"smtp":   25,
	"gopher": 70,
	"ldap":   389,
	"ldaps":  636,
}

// hostProfile maps and validates host names like a lookup, without STD3
// rules so that underscores used in real-world host names pass.
var hostProfile = idna.New(idna.MapForLookup(), idna.BidiRule(), idna.StrictDomainName(false))

type QueryParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// URLAnalysisResult is either invalid (ValidationError set, URLDetails nil)
// or valid with the full structural payload.
type URLAnalysisResult struct {
	OriginalURL     string    `json:"originalUrl"`
	IsValid         bool      `json:"isValid"`
	ValidationError string    `json:"validationError,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	*URLDetails
}

type URLDetails struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	// Port is nil only for a scheme without a known default port.
	Port  *int   `json:"port,omitempty"`
	Path  string `json:"path"`
	Query string `json:"query"`
	// QueryParameters is nil when the URL has no query at all.
	QueryParameters []QueryParameter `json:"queryParameters"`
	Fragment        string           `json:"fragment"`
	UserInfo        *string          `json:"userInfo,omitempty"`
	Authority       string           `json:"authority"`
	AbsoluteURI     string           `json:"absoluteUri"`
	LocalPath       string           `json:"localPath"`
	PathAndQuery    string           `json:"pathAndQuery"`
	// IsAvailable means the host answered an ICMP echo. A firewalled host
	// serving HTTP can still report false.
	IsAvailable bool        `json:"isAvailable"`
	AddressType AddressType `json:"addressType"`
	DNSRecords  []string    `json:"dnsRecords"`

	lookupHost string
}

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewResolver returns the system resolver, or a Go resolver that sends every
// query to server when one is given.
func NewResolver(server string, timeout time.Duration) Resolver {
	if server == "" || server == "system" {
		return net.DefaultResolver
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &net.Resolver{
		PreferGo: true, // use go dns client
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{
				Timeout: timeout,
			}
			return d.DialContext(ctx, network, server)
		},
	}
}

// URLAnalyzer runs parse, classify, resolve and reachability stages over
// one URL. Only the parse stage can make a result invalid.
type URLAnalyzer struct {
	Resolver     Resolver
	Prober       ReachabilityProber
	DNSTimeout   time.Duration
	ProbeTimeout time.Duration
}

func NewURLAnalyzer(resolver Resolver, prober ReachabilityProber) *URLAnalyzer {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &URLAnalyzer{
		Resolver:     resolver,
		Prober:       prober,
		DNSTimeout:   DefaultDNSTimeout,
		ProbeTimeout: DefaultPingTimeout,
	}
}

func (a *URLAnalyzer) Analyze(ctx context.Context, rawURL string) URLAnalysisResult {
	res := URLAnalysisResult{OriginalURL: rawURL}

	details, err := ParseURL(rawURL)
	if err != nil {
		log.Debugf("url %q rejected: %v", rawURL, err)
		res.ValidationError = err.Error()
		res.Timestamp = time.Now().UTC()
		return res
	}
	res.IsValid = true
	res.URLDetails = details

	var target net.IP
	if details.AddressType == AddressTypeHostname {
		details.DNSRecords = a.resolve(ctx, details.lookupHost)
		target = pingTarget(details.DNSRecords)
	} else {
		target = net.ParseIP(details.lookupHost)
	}

	if target != nil && a.Prober != nil {
		pctx, cancel := context.WithTimeout(ctx, a.ProbeTimeout)
		details.IsAvailable = a.Prober.Reachable(pctx, target)
		cancel()
	}

	res.Timestamp = time.Now().UTC()
	log.Infof("analyzed %s: %s, %d dns records, available=%t", details.AbsoluteURI, details.AddressType, len(details.DNSRecords), details.IsAvailable)
	return res
}

// pingTarget picks the first IPv4 record, falling back to the first record.
func pingTarget(records []string) net.IP {
	var first net.IP
	for _, r := range records {
		ip := net.ParseIP(r)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return ip
		}
		if first == nil {
			first = ip
		}
	}
	return first
}

// resolve never fails: an unresolvable host yields an empty record list.
func (a *URLAnalyzer) resolve(ctx context.Context, host string) []string {
	records := []string{}

	rctx, cancel := context.WithTimeout(ctx, a.DNSTimeout)
	defer cancel()
	addrs, err := a.Resolver.LookupIPAddr(rctx, host)
	if err != nil {
		log.Debugf("dns lookup for %s failed: %v", host, err)
		return records
	}

	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		s := addr.IP.String()
		if _, ok := seen[s]; ok || addr.IP == nil {
			continue
		}
		seen[s] = struct{}{}
		records = append(records, s)
	}
	return records
}

// ParseURL performs the network-free stages: structural decomposition and
// host classification. DNSRecords is left empty and IsAvailable false.
func ParseURL(rawURL string) (*URLDetails, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return nil, errors.New("url is empty")
	}
	if !hasScheme(s) {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}

	d := &URLDetails{
		Scheme:     u.Scheme,
		Host:       hostname,
		Fragment:   u.Fragment,
		DNSRecords: []string{},
	}

	d.AddressType, d.lookupHost, err = classifyHost(hostname)
	if err != nil {
		return nil, err
	}

	explicitPort := false
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		d.Port = &port
		explicitPort = port != defaultPorts[u.Scheme]
	} else if port, ok := defaultPorts[u.Scheme]; ok {
		d.Port = &port
	}

	if u.User != nil {
		if ui := u.User.String(); ui != "" {
			d.UserInfo = &ui
		}
	}

	d.Authority = hostname
	if strings.Contains(hostname, ":") {
		d.Authority = "[" + hostname + "]"
	}
	if explicitPort {
		d.Authority = net.JoinHostPort(hostname, strconv.Itoa(*d.Port))
	}

	d.Path = u.EscapedPath()
	if d.Path == "" {
		d.Path = "/"
	}
	d.LocalPath = cleanPath(u.Path)

	hasQuery := u.RawQuery != "" || u.ForceQuery
	d.PathAndQuery = d.Path
	if hasQuery {
		d.Query = "?" + u.RawQuery
		d.QueryParameters = parseQuery(u.RawQuery)
		d.PathAndQuery += d.Query
	}

	norm := url.URL{
		Scheme:     u.Scheme,
		User:       u.User,
		Host:       d.Authority,
		Path:       d.LocalPath,
		RawQuery:   u.RawQuery,
		ForceQuery: u.ForceQuery,
		Fragment:   u.Fragment,
	}
	d.AbsoluteURI = norm.String()

	return d, nil
}

// hasScheme reports whether s starts with "scheme://". A "://" later in the
// string, e.g. inside a query value, does not count.
func hasScheme(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for j, c := range s[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// classifyHost decides the address type by syntax only and returns the form
// used for DNS or ICMP.
func classifyHost(host string) (AddressType, string, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		// a mapped address can only be written in brackets, which is IPv6 syntax
		if addr.Is4() {
			return AddressTypeIPv4, addr.String(), nil
		}
		return AddressTypeIPv6, addr.WithZone("").String(), nil
	}
	ascii, err := hostProfile.ToASCII(host)
	if err != nil {
		return "", "", fmt.Errorf("invalid host name %q: %v", host, err)
	}
	return AddressTypeHostname, ascii, nil
}

// parseQuery splits on '&' and each parameter at its first '='. A parameter
// without '=' gets an empty value.
func parseQuery(rawQuery string) []QueryParameter {
	params := make([]QueryParameter, 0)
	for _, seg := range strings.Split(rawQuery, "&") {
		if seg == "" {
			continue
		}
		name, value, _ := strings.Cut(seg, "=")
		params = append(params, QueryParameter{
			Name:  unescapeQuery(name),
			Value: unescapeQuery(value),
		})
	}
	return params
}

func unescapeQuery(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// cleanPath removes dot segments and duplicate slashes, keeping a trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	c := path.Clean(p)
	if !strings.HasPrefix(c, "/") {
		c = "/" + c
	}
	if strings.HasSuffix(p, "/") && c != "/" {
		c += "/"
	}
	return c
}
