package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"

	applog "spendwise/internal/log"
)

// DefaultTrustedProxies are honoured when no proxy list is configured.
var DefaultTrustedProxies = MustParseProxies("127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16")

// credentialParams carry signed tokens whose base64 alphabet trips the
// pattern scan, so their values are never inspected.
var credentialParams = map[string]bool{"sig": true, "token": true}

var attackPatterns = []string{
	"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", "etc/passwd", "cmd.exe",
	"<script", "javascript:", "eval(", "union select",
}

var scannerAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
}

const (
	maxURLLength       = 2048
	maxForwardedHops   = 5
	reasonPattern      = "pattern"
	reasonAgent        = "scanner_agent"
	reasonMethod       = "method"
	reasonLongURL      = "url_length"
	reasonForwardChain = "forwarded_chain"
)

// DetectionMetrics counts what the detector has seen since start.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags requests that look like scans and resolves the client
// address through trusted reverse proxies. It never blocks a request.
type Detector struct {
	proxies     []netip.Prefix
	suspicious  atomic.Int64
	invalidAddr atomic.Int64
}

// ParseProxies parses CIDR prefixes such as "10.0.0.0/8" or "::1/128".
func ParseProxies(cidrs ...string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", c, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func MustParseProxies(cidrs ...string) []netip.Prefix {
	p, err := ParseProxies(cidrs...)
	if err != nil {
		panic(err)
	}
	return p
}

// NewDetector trusts forwarding headers only from peers inside proxies. A nil
// slice selects DefaultTrustedProxies; an empty one trusts nobody.
func NewDetector(proxies []netip.Prefix) *Detector {
	if proxies == nil {
		proxies = DefaultTrustedProxies
	}
	return &Detector{proxies: append([]netip.Prefix(nil), proxies...)}
}

// Inspect reports why r looks hostile, or "" when it does not.
func (d *Detector) Inspect(r *http.Request) string {
	reason := classify(r)
	if reason != "" {
		d.suspicious.Add(1)
	}
	return reason
}

func classify(r *http.Request) string {
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return reasonMethod
	}
	if len(r.URL.String()) > maxURLLength {
		return reasonLongURL
	}
	if containsAny(strings.ToLower(r.URL.Path), attackPatterns) {
		return reasonPattern
	}
	for key, values := range r.URL.Query() {
		if credentialParams[key] {
			continue
		}
		if containsAny(strings.ToLower(key), attackPatterns) {
			return reasonPattern
		}
		for _, v := range values {
			if containsAny(strings.ToLower(v), attackPatterns) {
				return reasonPattern
			}
		}
	}
	if containsAny(strings.ToLower(r.Header.Get("User-Agent")), scannerAgents) {
		return reasonAgent
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxForwardedHops {
		return reasonForwardChain
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the peer address, or the first forwarded address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !d.trusts(peer.Unmap()) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if _, err := netip.ParseAddr(first); err == nil {
			return first
		}
		d.invalidAddr.Add(1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return host
}

func (d *Detector) trusts(addr netip.Addr) bool {
	for _, p := range d.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidAddr.Load(),
	}
}

// Middleware logs and counts suspicious requests.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := d.Inspect(r); reason != "" {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldClientIP, d.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.Header.Get("User-Agent"),
				"reason", reason)
		}
		next.ServeHTTP(w, r)
	})
}
