package extractor

import (
	"bufio"
	"context"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// NewAPIClient returns the HTTP client used for direct API calls. With
// fingerprint set, HTTPS requests present a Chrome 120 ClientHello.
func NewAPIClient(timeout time.Duration, fingerprint bool) *http.Client {
	if !fingerprint {
		client := cleanhttp.DefaultPooledClient()
		client.Timeout = timeout
		return client
	}
	return &http.Client{
		Transport: newChromeRoundTripper(),
		Timeout:   timeout,
	}
}

// chromeRoundTripper dials every HTTPS request with a utls Chrome
// fingerprint, speaking HTTP/2 when negotiated.
type chromeRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
	plain       http.RoundTripper

	// rootCAs overrides the system pool when set.
	rootCAs *x509.CertPool
}

func newChromeRoundTripper() *chromeRoundTripper {
	return &chromeRoundTripper{
		dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		h2Transport: &http2.Transport{},
		plain:       cleanhttp.DefaultPooledTransport(),
	}
}

func (t *chromeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}

	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr = net.JoinHostPort(req.URL.Hostname(), "443")
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, &utls.Config{ServerName: req.URL.Hostname(), RootCAs: t.rootCAs}, utls.HelloChrome_120)
	if err := uconn.HandshakeContext(req.Context()); err != nil {
		conn.Close()
		return nil, err
	}

	if uconn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(uconn)
		if err != nil {
			uconn.Close()
			return nil, err
		}
		resp, err := h2Conn.RoundTrip(req)
		if err != nil {
			uconn.Close()
			return nil, err
		}
		resp.Body = &connCloser{ReadCloser: resp.Body, conn: uconn}
		return resp, nil
	}

	return roundTripHTTP1(uconn, req)
}

// roundTripHTTP1 owns conn for the lifetime of the response. The conn has
// no deadline of its own; cancelling the request context, client timeout
// included, closes it.
func roundTripHTTP1(conn net.Conn, req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	fail := func(err error) (*http.Response, error) {
		stop()
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if err := req.Write(conn); err != nil {
		return fail(err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		return fail(err)
	}
	resp.Body = &connCloser{ReadCloser: resp.Body, conn: conn, stop: stop}
	return resp, nil
}

// connCloser closes the dedicated connection along with the body.
type connCloser struct {
	io.ReadCloser
	conn net.Conn
	stop func() bool
}

func (c *connCloser) Close() error {
	if c.stop != nil {
		c.stop()
	}
	err := c.ReadCloser.Close()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
