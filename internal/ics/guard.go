package ics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrPrivateAddress is returned when a remote document points at a loopback,
// private or link-local address.
var ErrPrivateAddress = errors.New("ics: refusing non-public address")

// PublicAddr reports whether addr is routable on the public internet.
func PublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified()
}

// CheckPublicHost rejects host when it is, or resolves to, a non-public
// address. Resolution failures are left to the fetch itself.
func CheckPublicHost(ctx context.Context, host string) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		if !PublicAddr(addr) {
			return fmt.Errorf("%w: %s", ErrPrivateAddress, addr)
		}
		return nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if !PublicAddr(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, addr)
		}
	}
	return nil
}

// NewPublicClient returns an instrumented client whose dialer refuses
// non-public addresses, which also covers redirects and DNS rebinding.
func NewPublicClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return err
			}
			if !PublicAddr(addr) {
				return fmt.Errorf("%w: %s", ErrPrivateAddress, addr)
			}
			return nil
		},
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(transport),
	}
}
