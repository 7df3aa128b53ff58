package app

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// The portal acts with the stored session of whoever runs it, so it only
// binds loopback addresses unless remote access is explicitly allowed.
func ValidateSecurityConfig(cfg Config) error {
	host, _, err := net.SplitHostPort(cfg.Portal.Addr)
	if err != nil {
		return fmt.Errorf("%w: portal addr %q: %w", ErrConfig, cfg.Portal.Addr, err)
	}
	if !cfg.Portal.AllowRemote && !isLoopbackHost(host) {
		return fmt.Errorf("%w: portal addr %q is not loopback; set DOCQA_PORTAL_ALLOW_REMOTE=true to expose it", ErrConfig, cfg.Portal.Addr)
	}
	return nil
}

// insecureTransport reports whether tokens would travel in clear text to a
// host other than this machine.
func insecureTransport(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" && !isLoopbackHost(u.Hostname())
}

func isLoopbackHost(host string) bool {
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
