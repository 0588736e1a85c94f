package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/Laisky/zap"

	"github.com/agrelay/agrelay/common/config"
	"github.com/agrelay/agrelay/common/logger"
	"github.com/agrelay/agrelay/common/network"
)

// HTTPClient is the default outbound client used for upstream relay calls.
// It carries no explicit timeout by default: streaming responses may stay
// open far longer than any sane request timeout.
var HTTPClient *http.Client

// ImpatientHTTPClient is a short-timeout client for health checks and
// metadata requests.
var ImpatientHTTPClient *http.Client

// Init builds the shared HTTP clients and vets the configured upstream
// endpoints. An invalid or non-public base URL refuses startup: every call
// to it would carry an account bearer token.
func Init() {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	// HTTP/2 disabled to avoid mid-stream resets on long-lived SSE responses.
	transport := &http.Transport{
		DialContext:  dialer.DialContext,
		TLSNextProto: make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
	}

	if config.RelayTimeout == 0 {
		HTTPClient = &http.Client{Transport: transport}
	} else {
		HTTPClient = &http.Client{
			Timeout:   time.Duration(config.RelayTimeout) * time.Second,
			Transport: transport,
		}
	}

	ImpatientHTTPClient = &http.Client{
		Timeout:   5 * time.Second,
		Transport: transport,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, raw := range config.UpstreamBaseURLs {
		base, err := network.NormalizeUpstreamBase(raw)
		if err != nil {
			logger.Logger.Panic("refusing to start with invalid upstream base url",
				zap.String("url", raw), zap.Error(err))
		}
		config.UpstreamBaseURLs[i] = base.String()

		ips, err := network.ResolveHostIPs(ctx, base.Hostname())
		if err != nil {
			// the resolver may be unreachable at boot; the dialer surfaces
			// persistent failures on the first relay attempt
			logger.Logger.Warn("could not resolve upstream host",
				zap.String("host", base.Hostname()), zap.Error(err))
			continue
		}
		if ip := network.FirstForbiddenIP(ips); ip != nil {
			logger.Logger.Panic("upstream host resolves to a non-public address",
				zap.String("host", base.Hostname()), zap.String("ip", ip.String()))
		}
	}
}
