package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"image"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// ImageFetcher downloads and decodes listing thumbnails. A missing or
// undecodable image comes back as nil, nil: the pipeline treats that as
// "no image", never as a fatal condition.
type ImageFetcher interface {
	Download(ctx context.Context, url string) (image.Image, error)
}

type imageFetcher struct {
	httpClient *resty.Client
}

func NewImageFetcher(userAgent string, timeout time.Duration) ImageFetcher {
	return &imageFetcher{
		httpClient: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("User-Agent", userAgent).
			SetTLSClientConfig(&tls.Config{
				InsecureSkipVerify: true,
			}),
	}
}

func (f *imageFetcher) Download(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		return nil, nil
	}

	resp, err := f.httpClient.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		log.Debugf("image download failed for %s: %v", url, err)
		return nil, nil
	}
	if resp.IsError() {
		log.Debugf("image download for %s returned %s", url, resp.Status())
		return nil, nil
	}

	img, format, err := image.Decode(bytes.NewReader(resp.Bytes()))
	if err != nil {
		log.Debugf("image decode failed for %s: %v", url, err)
		return nil, nil
	}
	log.Debugf("downloaded %s image from %s", format, url)
	return img, nil
}
