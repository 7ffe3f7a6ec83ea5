package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects bounds the redirects followed for one page.
const maxRedirects = 10

// checkProxyTimeout bounds the SOCKS5 handshake performed by CheckProxy.
const checkProxyTimeout = 2 * time.Second

// Proxy errors.
var (
	// ErrInvalidProxyAddress is returned for an address not in "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: must be host:port")

	// ErrProxyUnreachable is returned when nothing listens at the proxy address.
	ErrProxyUnreachable = errors.New("cannot connect to proxy")

	// ErrNotSOCKS5 is returned when the proxy does not complete a SOCKS5
	// handshake without authentication.
	ErrNotSOCKS5 = errors.New("proxy does not speak SOCKS5 without authentication")
)

// SOCKS5 protocol constants
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// validateProxyAddress checks that address is "host:port" with a port in 1-65535.
func validateProxyAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	return nil
}

// NewProxyClient returns an HTTP client that dials every connection through
// the SOCKS5 proxy at address. The proxy is not contacted until the first
// request; call CheckProxy to verify it up front.
func NewProxyClient(address string) (*http.Client, error) {
	if err := validateProxyAddress(address); err != nil {
		return nil, err
	}

	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", address)
	}

	transport := &http.Transport{
		DialContext:         contextDialer.DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &http.Client{
		Transport:     transport,
		CheckRedirect: limitRedirects,
	}, nil
}

// limitRedirects stops following redirects after maxRedirects hops and
// returns the last response instead.
func limitRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	return nil
}

// CheckProxy performs a SOCKS5 version negotiation with the proxy at address.
// It returns nil when the proxy accepts connections without authentication.
func CheckProxy(ctx context.Context, address string) error {
	if err := validateProxyAddress(address); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProxyUnreachable, address, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProxyUnreachable, address, err)
	}

	// Offer "no authentication" only.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProxyUnreachable, address, err)
	}

	// Reply: version, selected method.
	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return fmt.Errorf("%w: %s", ErrNotSOCKS5, address)
	}
	if reply[0] != socks5Version || reply[1] == socks5AuthNoAccept || reply[1] != socks5AuthNone {
		return fmt.Errorf("%w: %s", ErrNotSOCKS5, address)
	}
	return nil
}
