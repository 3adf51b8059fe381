package proxy

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// ProxySupplier hands out proxies round-robin. The client rotates to a
// new one whenever the site starts blocking the current address.
type ProxySupplier interface {
	Get() string
}

type proxySupplier struct {
	proxies []string
	current int
	mutex   sync.Mutex
}

// NewProxySupplier validates the configured proxies in parallel against
// the marketplace and keeps only the working ones. An empty list is
// fine: Get then always returns "".
func NewProxySupplier(ctx context.Context, proxies []string, testURL string) (ProxySupplier, error) {
	if len(proxies) == 0 {
		return &proxySupplier{}, nil
	}

	log.Infof("🔄 Testing %d proxies...", len(proxies))

	valid := make(chan string, len(proxies))
	var wg sync.WaitGroup
	for _, proxyURL := range proxies {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			if probeProxy(ctx, p, testURL) {
				valid <- p
			} else {
				log.Infof("❌ Proxy %s is not working, skipping", p)
			}
		}(proxyURL)
	}
	wg.Wait()
	close(valid)

	s := &proxySupplier{}
	for p := range valid {
		s.proxies = append(s.proxies, p)
	}

	log.Infof("✅ %d of %d proxies usable", len(s.proxies), len(proxies))
	return s, nil
}

func (s *proxySupplier) Get() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.proxies) == 0 {
		return ""
	}
	p := s.proxies[s.current]
	s.current = (s.current + 1) % len(s.proxies)
	return p
}

func probeProxy(ctx context.Context, proxyURL, testURL string) bool {
	probe := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0).
		SetProxy(proxyURL).
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	resp, err := probe.R().
		SetContext(ctx).
		Get(testURL)
	return err == nil && !resp.IsError()
}
