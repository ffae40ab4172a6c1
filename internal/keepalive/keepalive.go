// Package keepalive pings a fixed set of URLs on an interval so hosting
// platforms that sleep idle instances keep the workers warm.
package keepalive

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxBody bounds how much of a ping response is read into the log line.
const maxBody = 256

// Pinger GETs every URL once per interval. Failures only log.
type Pinger struct {
	urls     []string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
}

func NewPinger(urls []string, interval time.Duration, logger *slog.Logger) *Pinger {
	return &Pinger{
		urls:     urls,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Run pings immediately, then on every tick until ctx is done.
func (p *Pinger) Run(ctx context.Context) {
	if len(p.urls) == 0 || p.interval <= 0 {
		return
	}
	p.logger.Info("Keep-alive pinger started", "targets", len(p.urls), "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.PingAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PingAll pings each URL in turn and returns how many answered 2xx.
func (p *Pinger) PingAll(ctx context.Context) int {
	ok := 0
	for _, url := range p.urls {
		if ctx.Err() != nil {
			return ok
		}
		text, err := p.ping(ctx, url)
		if err != nil {
			p.logger.Warn("Ping failed", "url", url, "err", err)
			continue
		}
		ok++
		p.logger.Info("Pinged", "url", url, "response", text)
	}
	return ok
}

type statusError struct{ code int }

func (e statusError) Error() string { return "unexpected status " + http.StatusText(e.code) }

func (p *Pinger) ping(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError{resp.StatusCode}
	}
	return strings.TrimSpace(string(body)), nil
}
