package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beanvault/wallpaper-ai/internal/blob"
	"github.com/beanvault/wallpaper-ai/internal/imaging"
	"github.com/beanvault/wallpaper-ai/internal/pipeline"
	"github.com/beanvault/wallpaper-ai/internal/replicate"
	"github.com/beanvault/wallpaper-ai/internal/webhook"
)

// providerServer records prediction submissions.
type providerServer struct {
	mu   sync.Mutex
	reqs []providerCall
}

type providerCall struct {
	Path    string
	Webhook string
	Input   map[string]interface{}
}

func (p *providerServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Webhook string                 `json:"webhook"`
		Input   map[string]interface{} `json:"input"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	p.reqs = append(p.reqs, providerCall{Path: r.URL.Path, Webhook: body.Webhook, Input: body.Input})
	id := fmt.Sprintf("pred-%d", len(p.reqs))
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"id":%q,"status":"starting"}`, id)
}

func (p *providerServer) calls() []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]providerCall(nil), p.reqs...)
}

func testJPEG(t *testing.T, w, h int) []byte {
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

func TestEndToEnd_SakuraWallpaper(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	blobs := blob.NewMemoryStore()

	full := testJPEG(t, 662, 1440)
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(full)
	}))
	defer images.Close()

	provider := &providerServer{}
	providerSrv := httptest.NewServer(provider)
	defer providerSrv.Close()
	client := replicate.NewClient("r8_test", providerSrv.URL)

	const base = "https://wallpapers.example.com"
	finalizer := pipeline.NewFinalizer(pipeline.FinalizerDeps{
		Counter:    store,
		Catalog:    store,
		Blobs:      blobs,
		PublicURL:  func(key string) string { return "https://cdn.example.com/" + key },
		Fetcher:    imaging.NewHTTPFetcher(),
		Downscaler: imaging.NewLocalDownscaler(336, 720),
	})
	router := NewRouter(Deps{
		Catalog:   store,
		Generator: pipeline.NewGenerator(client, "", base),
		Webhooks: webhook.NewHandler(
			pipeline.NewUpscaler(client, "", base, time.Second),
			finalizer,
			"",
		),
	})

	// 1. Admin trigger submits the generation job.
	rr := do(router, http.MethodPost, "/generate/light?category=sakura&prompt=cherry+blossoms", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	calls := provider.calls()
	if len(calls) != 1 || calls[0].Path != "/models/black-forest-labs/flux-pro/predictions" {
		t.Fatalf("unexpected provider calls %+v", calls)
	}
	if calls[0].Webhook != base+"/webhook/generated?category=sakura" {
		t.Errorf("unexpected generation callback %s", calls[0].Webhook)
	}

	// 2. Generation completes; the upscale job is submitted before the ack.
	genURL := images.URL + "/gen.jpg"
	rr = do(router, http.MethodPost, "/webhook/generated?category=sakura",
		`{"id":"pred-1","status":"succeeded","output":"`+genURL+`"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("generated callback: expected 200, got %d", rr.Code)
	}
	calls = provider.calls()
	if len(calls) != 2 || calls[1].Path != "/predictions" || calls[1].Input["image"] != genURL {
		t.Fatalf("expected an upscale submission, got %+v", calls)
	}
	if calls[1].Webhook != base+"/webhook/upscale?category=sakura" {
		t.Errorf("unexpected upscale callback %s", calls[1].Webhook)
	}
	if n := blobs.Len(); n != 0 {
		t.Errorf("nothing should be stored before finalization")
	}

	// 3. Upscale completes; the wallpaper is finalized.
	rr = do(router, http.MethodPost, "/webhook/upscale?category=sakura",
		`{"id":"pred-2","status":"succeeded","output":["`+images.URL+`/up.jpg"]}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("upscale callback: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[pipeline.Result](t, rr)
	want := pipeline.Result{FileName: "sakura_00001", URL: "https://cdn.example.com/sakura_00001.jpg", CategoryCount: 1}
	if res != want {
		t.Errorf("expected %+v, got %+v", want, res)
	}

	fullObj, ok := blobs.Get("sakura_00001.jpg")
	if !ok || !bytes.Equal(fullObj.Data, full) || fullObj.Metadata["category"] != "sakura" {
		t.Errorf("full image not stored as expected")
	}
	small, ok := blobs.Get("sakura_00001_downscaled.jpg")
	if !ok {
		t.Fatal("downscaled image not stored")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(small.Data))
	if err != nil || cfg.Width > 336 || cfg.Height > 720 {
		t.Errorf("unexpected downscaled image %dx%d (err %v)", cfg.Width, cfg.Height, err)
	}

	rows, _ := store.Latest(ctx, 10)
	if len(rows) != 1 || rows[0].Filename != "sakura_00001" || rows[0].Downloads != 0 {
		t.Errorf("unexpected catalog %+v", rows)
	}

	// 4. A redelivered upscale callback does not create a second wallpaper.
	rr = do(router, http.MethodPost, "/webhook/upscale?category=sakura",
		`{"id":"pred-2","status":"succeeded","output":["`+images.URL+`/up.jpg"]}`, nil)
	if rr.Code != http.StatusOK || decode[pipeline.Result](t, rr) != want {
		t.Errorf("replay: expected the original result, got %d %s", rr.Code, rr.Body.String())
	}

	// 5. The wallpaper is visible and downloadable through the catalog API.
	light := decode[[]categoryResponse](t, do(router, http.MethodGet, "/api/categories/light", "", nil))
	if len(light) != 1 || light[0].Category != "sakura" || light[0].Count != 1 {
		t.Errorf("unexpected categories %+v", light)
	}
	rr = do(router, http.MethodPost, "/api/download", `{"name":"sakura_00001"}`, nil)
	if got := decode[downloadResponse](t, rr); got.NewDownloadCount != 1 {
		t.Errorf("expected download count 1, got %+v", got)
	}
}

func TestEndToEnd_FailedGenerationStops(t *testing.T) {
	provider := &providerServer{}
	providerSrv := httptest.NewServer(provider)
	defer providerSrv.Close()
	client := replicate.NewClient("r8_test", providerSrv.URL)
	store := newTestStore(t)

	router := NewRouter(Deps{
		Catalog: store,
		Webhooks: webhook.NewHandler(
			pipeline.NewUpscaler(client, "", "https://x", time.Second),
			nil,
			"",
		),
	})

	rr := do(router, http.MethodPost, "/webhook/generated?category=sakura",
		`{"id":"pred-1","status":"failed","error":"content flagged"}`, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if n := len(provider.calls()); n != 0 {
		t.Errorf("expected zero upscale submissions, got %d", n)
	}
	counters, _ := store.ListCounters(context.Background())
	if len(counters) != 0 {
		t.Errorf("expected no counters, got %+v", counters)
	}
	if strings.TrimSpace(rr.Body.String()) != "" {
		t.Errorf("expected empty ack body, got %q", rr.Body.String())
	}
}
