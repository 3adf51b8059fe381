package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"mercari/monitor/internal/config"
	"mercari/monitor/internal/domain"
	"mercari/monitor/internal/faults"
	"mercari/monitor/internal/proxy"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

// MercariClient fetches raw search pages from the marketplace. Every
// failure it raises carries a fault kind so the retry executor can
// classify it.
type MercariClient interface {
	FetchSearchPage(ctx context.Context, keyword string, cond domain.SearchConditions) (string, error)
}

type mercariClient struct {
	rl            ratelimit.Limiter
	config        config.ScraperConfig
	baseURL       string
	httpClient    *resty.Client
	proxySupplier proxy.ProxySupplier

	// cool-off after the site starts refusing us
	breakerMutex sync.RWMutex
	blockedUntil time.Time
	breakerDelay time.Duration
}

func NewMercariClient(cfg config.ScraperConfig, proxySupplier proxy.ProxySupplier) MercariClient {
	httpClient := resty.New().
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8").
		SetHeader("Accept-Language", "ja,en-US;q=0.7,en;q=0.3").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	if proxySupplier != nil {
		if proxyURL := proxySupplier.Get(); proxyURL != "" {
			httpClient.SetProxy(proxyURL)
			log.Infof("🔗 Using initial proxy: %s", proxyURL)
		}
	}

	return &mercariClient{
		rl:            ratelimit.New(cfg.MaxRequestsPerSecond),
		config:        cfg,
		baseURL:       cfg.BaseURL,
		httpClient:    httpClient,
		proxySupplier: proxySupplier,
		breakerDelay:  time.Duration(cfg.CoolOffMinutes) * time.Minute,
	}
}

func (c *mercariClient) FetchSearchPage(ctx context.Context, keyword string, cond domain.SearchConditions) (string, error) {
	url := buildSearchURL(c.baseURL, keyword, cond)
	log.Debugf("🔍 search URL: %s", url)
	return c.fetchHTML(ctx, url)
}

func (c *mercariClient) fetchHTML(ctx context.Context, url string) (string, error) {
	if c.isCoolingOff() {
		remaining := c.coolOffRemaining()
		return "", faults.New(faults.KindActionBlocked,
			"requests paused for %v more after being blocked", remaining.Round(time.Second))
	}

	// intentionally slow request rate to stay under anti-automation radar
	c.rl.Take()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(url)

	if err != nil {
		if ctx.Err() != nil {
			return "", faults.Wrap(faults.KindTimeout, fmt.Errorf("request cancelled: %w", ctx.Err()))
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", faults.Wrap(faults.KindTimeout, err)
		}
		return "", faults.Wrap(faults.KindNetworkFailure, fmt.Errorf("failed to fetch URL: %w", err))
	}

	if resp.IsError() {
		return "", c.classifyHTTPError(resp)
	}

	html := resp.String()
	if looksBlocked(html) {
		log.Warnf("🚫 Anti-automation page returned for URL: %s", url)

		if c.proxySupplier != nil {
			if newProxy := c.proxySupplier.Get(); newProxy != "" {
				log.Infof("🔄 Switching to proxy %s and retrying once", newProxy)
				c.httpClient.SetProxy(newProxy)

				retryResp, retryErr := c.httpClient.R().SetContext(ctx).Get(url)
				if retryErr == nil && !retryResp.IsError() && !looksBlocked(retryResp.String()) {
					log.Infof("✅ Retry through new proxy succeeded")
					return retryResp.String(), nil
				}
			}
		}

		c.triggerCoolOff()
		return "", faults.New(faults.KindActionBlocked,
			"blocked by site - cooling off for %v", c.breakerDelay)
	}

	return html, nil
}

func (c *mercariClient) classifyHTTPError(resp *resty.Response) error {
	status := resp.StatusCode()
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		c.triggerCoolOff()
		return faults.New(faults.KindActionBlocked, "HTTP %d %s", status, resp.Status())
	case status == http.StatusNotFound:
		return faults.New(faults.KindElementMissing, "HTTP %d %s", status, resp.Status())
	case status >= 500:
		return faults.New(faults.KindAutomationFault, "HTTP %d %s", status, resp.Status())
	default:
		return faults.New(faults.KindNetworkFailure, "HTTP %d %s", status, resp.Status())
	}
}

func looksBlocked(html string) bool {
	return strings.Contains(html, "captcha") && !strings.Contains(html, "item-cell") ||
		strings.Contains(html, "Access Denied") ||
		strings.Contains(html, "アクセスが制限されています")
}

func (c *mercariClient) isCoolingOff() bool {
	c.breakerMutex.RLock()
	now := time.Now()
	cooling := now.Before(c.blockedUntil)
	wasTriggered := !c.blockedUntil.IsZero()
	c.breakerMutex.RUnlock()

	if !cooling && wasTriggered {
		c.breakerMutex.Lock()
		if !c.blockedUntil.IsZero() && now.After(c.blockedUntil) {
			c.blockedUntil = time.Time{}
			log.Infof("✅ Cool-off expired - requests are allowed again")
		}
		c.breakerMutex.Unlock()
	}

	return cooling
}

func (c *mercariClient) triggerCoolOff() {
	c.breakerMutex.Lock()
	defer c.breakerMutex.Unlock()

	c.blockedUntil = time.Now().Add(c.breakerDelay)
	log.Warnf("🚫 Cool-off activated! Requests paused until %s", c.blockedUntil.Format("15:04:05"))
}

func (c *mercariClient) coolOffRemaining() time.Duration {
	c.breakerMutex.RLock()
	defer c.breakerMutex.RUnlock()

	remaining := time.Until(c.blockedUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}
