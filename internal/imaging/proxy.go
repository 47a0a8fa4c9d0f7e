package imaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Downscaler produces the preview variant of an image. srcURL is where the
// full image was fetched from and full is its bytes; implementations may use
// either.
type Downscaler interface {
	Downscale(ctx context.Context, srcURL string, full []byte) ([]byte, error)
}

// Proxy builds imgproxy URLs that fit a source image within a box and
// re-encode it as JPEG.
type Proxy struct {
	baseURL string
	key     []byte
	salt    []byte
}

// NewProxy creates a Proxy for the imgproxy instance at baseURL. keyHex and
// saltHex enable signed URLs; when either is empty URLs use the "insecure"
// signature placeholder.
func NewProxy(baseURL, keyHex, saltHex string) (*Proxy, error) {
	p := &Proxy{baseURL: strings.TrimRight(baseURL, "/")}
	if keyHex == "" || saltHex == "" {
		return p, nil
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode imgproxy key: %w", err)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, fmt.Errorf("decode imgproxy salt: %w", err)
	}
	p.key, p.salt = key, salt
	return p, nil
}

// URL returns the resize URL for src fitted within width x height.
func (p *Proxy) URL(src string, width, height int) string {
	path := fmt.Sprintf("/rs:fit:%d:%d/f:jpg/plain/%s", width, height, url.QueryEscape(src))
	return p.baseURL + "/" + p.sign(path) + path
}

func (p *Proxy) sign(path string) string {
	if p.key == nil {
		return "insecure"
	}
	mac := hmac.New(sha256.New, p.key)
	mac.Write(p.salt)
	mac.Write([]byte(path))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ProxyDownscaler downscales by fetching the source through imgproxy.
type ProxyDownscaler struct {
	proxy   *Proxy
	fetcher Fetcher
	width   int
	height  int
}

// Compile-time interface check.
var _ Downscaler = (*ProxyDownscaler)(nil)

// NewProxyDownscaler resizes through proxy to fit within width x height.
func NewProxyDownscaler(proxy *Proxy, fetcher Fetcher, width, height int) *ProxyDownscaler {
	return &ProxyDownscaler{proxy: proxy, fetcher: fetcher, width: width, height: height}
}

func (d *ProxyDownscaler) Downscale(ctx context.Context, srcURL string, _ []byte) ([]byte, error) {
	data, err := d.fetcher.Fetch(ctx, d.proxy.URL(srcURL, d.width, d.height))
	if err != nil {
		return nil, fmt.Errorf("downscale via proxy: %w", err)
	}
	return data, nil
}
