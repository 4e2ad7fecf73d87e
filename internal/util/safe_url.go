package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	ErrUnsafeScheme   = errors.New("only http and https urls are allowed")
	ErrHostNotAllowed = errors.New("url host is not allowed")
	ErrPrivateAddress = errors.New("url targets a private or loopback address")
)

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// URLGuard vets URLs that a headless browser will be sent to.
type URLGuard struct {
	// AllowHosts, when set, limits URLs to these hosts and their subdomains.
	AllowHosts []string
	// AllowPrivate permits loopback, private and link-local targets.
	AllowPrivate bool
	// Lookup resolves host names. Defaults to net.DefaultResolver.
	Lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Check returns nil when raw may be fetched. Every resolved address must be
// public; a host that does not resolve is rejected.
func (g *URLGuard) Check(ctx context.Context, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return errors.New("url has no host")
	}
	if !g.hostAllowed(host) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	if g.AllowPrivate {
		return nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return ErrPrivateAddress
		}
		return nil
	}
	lookup := g.Lookup
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIPAddr
	}
	addrs, err := lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok || blockedAddr(addr) {
			return ErrPrivateAddress
		}
	}
	return nil
}

func (g *URLGuard) hostAllowed(host string) bool {
	if len(g.AllowHosts) == 0 {
		return true
	}
	for _, allowed := range g.AllowHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() ||
		sharedAddressSpace.Contains(addr)
}
