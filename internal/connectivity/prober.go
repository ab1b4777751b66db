package connectivity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// StatusListener receives the result of every probe.
type StatusListener interface {
	SetOnline(ctx context.Context, online bool)
}

// HTTPProber polls the collector host and reports reachability. Any HTTP
// response, whatever its status, means the network path is up.
type HTTPProber struct {
	client   *resty.Client
	url      string
	listener StatusListener
	interval time.Duration
	logger   *zap.Logger
}

func NewHTTPProber(
	probeURL string,
	interval time.Duration,
	listener StatusListener,
	logger *zap.Logger,
) (*HTTPProber, error) {
	client := resty.New()
	client.SetTimeout(defaultProbeTimeout)
	client.SetRetryCount(0)

	return NewHTTPProberWithClient(probeURL, interval, listener, client, logger)
}

func NewHTTPProberWithClient(
	probeURL string,
	interval time.Duration,
	listener StatusListener,
	client *resty.Client,
	logger *zap.Logger,
) (*HTTPProber, error) {
	trimmedURL := strings.TrimSpace(probeURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("probe url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid probe url: %w", err)
	}
	if listener == nil {
		return nil, fmt.Errorf("status listener is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPProber{
		client:   client,
		url:      trimmedURL,
		listener: listener,
		interval: interval,
		logger:   logger,
	}, nil
}

// Start probes immediately and then on every tick until ctx is done.
func (p *HTTPProber) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

// Probe performs one reachability check.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	resp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Head(p.url)
	if err != nil {
		p.logger.Debug("connectivity probe failed", zap.String("url", p.url), zap.Error(err))
		return false
	}
	if body := resp.RawBody(); body != nil {
		_ = body.Close()
	}
	return true
}

func (p *HTTPProber) probe(ctx context.Context) {
	online := p.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	p.listener.SetOnline(ctx, online)
}
