package imaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// --- Fetch ---

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	data, err := f.Fetch(context.Background(), server.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("unexpected body %q", data)
	}

	if _, err := f.Fetch(context.Background(), server.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 100))
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	f.maxBytes = 10
	if _, err := f.Fetch(context.Background(), server.URL); err == nil {
		t.Error("expected size limit error")
	}
}

// --- Proxy ---

func TestProxy_InsecureURL(t *testing.T) {
	p, err := NewProxy("https://img.example.com/", "", "")
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	got := p.URL("https://replicate.delivery/out.jpg", 336, 720)
	want := "https://img.example.com/insecure/rs:fit:336:720/f:jpg/plain/https%3A%2F%2Freplicate.delivery%2Fout.jpg"
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestProxy_SignedURL(t *testing.T) {
	p, err := NewProxy("https://img.example.com", "6b6579", "73616c74") // "key", "salt"
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	got := p.URL("https://x/y.jpg", 336, 720)

	path := "/rs:fit:336:720/f:jpg/plain/https%3A%2F%2Fx%2Fy.jpg"
	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write([]byte("salt"))
	mac.Write([]byte(path))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if got != "https://img.example.com/"+sig+path {
		t.Errorf("unexpected signed URL %s", got)
	}
}

func TestNewProxy_BadKey(t *testing.T) {
	if _, err := NewProxy("https://img", "zz", "00"); err == nil {
		t.Error("expected hex decode error")
	}
}

func TestProxyDownscaler_FetchesThroughProxy(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte("small"))
	}))
	defer server.Close()

	p, _ := NewProxy(server.URL, "", "")
	d := NewProxyDownscaler(p, NewHTTPFetcher(), 336, 720)
	data, err := d.Downscale(context.Background(), "https://cdn/full.jpg", nil)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	if string(data) != "small" {
		t.Errorf("unexpected data %q", data)
	}
	if !strings.HasPrefix(gotPath, "/insecure/rs:fit:336:720/") {
		t.Errorf("unexpected proxy path %s", gotPath)
	}
}

// --- Local resize ---

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{1324, 2880, 336, 720, 331, 720},
		{662, 1440, 336, 720, 331, 720},
		{1000, 500, 336, 720, 336, 168},
		{200, 300, 336, 720, 200, 300},
		{1000, 2000, 336, 0, 336, 672},
	}
	for _, tt := range tests {
		w, h := FitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("FitWithin(%d,%d,%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, tt.maxW, tt.maxH, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestLocalDownscaler(t *testing.T) {
	full := encodeTestJPEG(t, 200, 400)
	d := NewLocalDownscaler(50, 720)

	out, err := d.Downscale(context.Background(), "", full)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg output, got %s", format)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 100 {
		t.Errorf("expected 50x100, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestLocalDownscaler_InvalidImage(t *testing.T) {
	d := NewLocalDownscaler(336, 720)
	if _, err := d.Downscale(context.Background(), "", []byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}
