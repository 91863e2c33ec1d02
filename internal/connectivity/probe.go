package connectivity

import (
	"context"
	"net"
	"net/http"
)

// Probe answers whether the remote side is reachable right now.
type Probe interface {
	CheckNow(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) CheckNow(ctx context.Context) bool { return f(ctx) }

// TCPProbe reports reachable when a TCP connection to Address succeeds.
type TCPProbe struct {
	Address string
	Dialer  net.Dialer
}

func (p *TCPProbe) CheckNow(ctx context.Context) bool {
	conn, err := p.Dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// HTTPProbe sends HEAD to URL. Any response below 500 counts as reachable.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func (p *HTTPProbe) CheckNow(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
