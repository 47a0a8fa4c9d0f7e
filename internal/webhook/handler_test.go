package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beanvault/wallpaper-ai/internal/pipeline"
	"github.com/beanvault/wallpaper-ai/internal/replicate"
)

const testSecretKey = "webhook-test-signing-key"

var testSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte(testSecretKey))

type fakeUpscaler struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeUpscaler) Trigger(_ context.Context, imageURL, category string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, category+" "+imageURL)
	return http.StatusOK
}

type fakeFinalizer struct {
	reqs []pipeline.FinalizeRequest
	err  error
}

func (f *fakeFinalizer) Finalize(_ context.Context, req pipeline.FinalizeRequest) (*pipeline.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{
		FileName:      req.Category + "_00001",
		URL:           "https://cdn.example.com/" + req.Category + "_00001.jpg",
		CategoryCount: 1,
	}, nil
}

func newTestHandler(secret string) (*Handler, *fakeUpscaler, *fakeFinalizer) {
	up := &fakeUpscaler{}
	fin := &fakeFinalizer{}
	return NewHandler(up, fin, secret), up, fin
}

func post(h http.HandlerFunc, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func signedHeader(id string, ts time.Time, body string) http.Header {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	sig := replicate.SignWebhook([]byte(testSecretKey), id, stamp, []byte(body))
	h := http.Header{}
	h.Set(replicate.HeaderWebhookID, id)
	h.Set(replicate.HeaderWebhookTimestamp, stamp)
	h.Set(replicate.HeaderWebhookSignature, "v1,"+base64.StdEncoding.EncodeToString(sig))
	return h
}

// --- Generation callback ---

func TestGenerated_SuccessTriggersUpscale(t *testing.T) {
	h, up, _ := newTestHandler("")
	body := `{"id":"gen-1","status":"succeeded","output":"https://replicate.delivery/gen.jpg"}`

	rr := post(h.HandleGenerated, "/webhook/generated?category=sakura", body, nil)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if len(up.calls) != 1 || up.calls[0] != "sakura https://replicate.delivery/gen.jpg" {
		t.Errorf("unexpected upscale calls %v", up.calls)
	}
}

func TestGenerated_ListOutputUsesFirstURL(t *testing.T) {
	h, up, _ := newTestHandler("")
	body := `{"id":"gen-1","status":"succeeded","output":["https://a/1.jpg","https://a/2.jpg"]}`

	post(h.HandleGenerated, "/webhook/generated?category=Sakura", body, nil)

	if len(up.calls) != 1 || up.calls[0] != "sakura https://a/1.jpg" {
		t.Errorf("unexpected upscale calls %v", up.calls)
	}
}

func TestGenerated_IgnoredCallbacks(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"failed status", "/webhook/generated?category=sakura", `{"id":"g","status":"failed","error":"NSFW"}`},
		{"canceled status", "/webhook/generated?category=sakura", `{"id":"g","status":"canceled"}`},
		{"missing category", "/webhook/generated", `{"id":"g","status":"succeeded","output":"https://a/1.jpg"}`},
		{"invalid category", "/webhook/generated?category=..%2F..", `{"id":"g","status":"succeeded","output":"https://a/1.jpg"}`},
		{"missing output", "/webhook/generated?category=sakura", `{"id":"g","status":"succeeded"}`},
		{"null output", "/webhook/generated?category=sakura", `{"id":"g","status":"succeeded","output":null}`},
		{"undecodable body", "/webhook/generated?category=sakura", `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, up, _ := newTestHandler("")
			rr := post(h.HandleGenerated, tt.target, tt.body, nil)
			if rr.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rr.Code)
			}
			if len(up.calls) != 0 {
				t.Errorf("expected zero upscale calls, got %v", up.calls)
			}
		})
	}
}

func TestGenerated_MethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler("")
	req := httptest.NewRequest(http.MethodGet, "/webhook/generated?category=sakura", nil)
	rr := httptest.NewRecorder()

	h.HandleGenerated(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rr.Code)
	}
}

// --- Upscale callback ---

func TestUpscale_SuccessFinalizes(t *testing.T) {
	h, _, fin := newTestHandler("")
	body := `{"id":"up-7","status":"succeeded","output":["https://replicate.delivery/up.jpg"]}`

	rr := post(h.HandleUpscale, "/webhook/upscale?category=sakura", body, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res pipeline.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.FileName != "sakura_00001" || res.CategoryCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	want := pipeline.FinalizeRequest{Category: "sakura", OutputURL: "https://replicate.delivery/up.jpg", SourceID: "up-7"}
	if len(fin.reqs) != 1 || fin.reqs[0] != want {
		t.Errorf("unexpected finalize requests %+v", fin.reqs)
	}
}

func TestUpscale_ProviderFailureAcknowledged(t *testing.T) {
	for _, status := range []string{replicate.StatusFailed, replicate.StatusCanceled, "processing", "starting", "unknown"} {
		h, _, fin := newTestHandler("")
		body := `{"id":"u","status":"` + status + `","output":["https://img/b.png"]}`
		rr := post(h.HandleUpscale, "/webhook/upscale?category=sakura", body, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", status, rr.Code)
		}
		if len(fin.reqs) != 0 {
			t.Errorf("%s: expected no finalization", status)
		}
	}
}

func TestUpscale_MissingStatusFinalizes(t *testing.T) {
	h, _, fin := newTestHandler("")
	rr := post(h.HandleUpscale, "/webhook/upscale?category=sakura", `{"output":["https://img/b.png"]}`, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if len(fin.reqs) != 1 {
		t.Errorf("expected one finalization, got %d", len(fin.reqs))
	}
}

func TestUpscale_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing category", "/webhook/upscale", `{"status":"succeeded","output":["https://a/1.jpg"]}`},
		{"invalid category", "/webhook/upscale?category=%20%2F", `{"status":"succeeded","output":["https://a/1.jpg"]}`},
		{"missing output", "/webhook/upscale?category=sakura", `{"status":"succeeded"}`},
		{"empty output", "/webhook/upscale?category=sakura", `{"status":"succeeded","output":[]}`},
		{"undecodable body", "/webhook/upscale?category=sakura", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, fin := newTestHandler("")
			rr := post(h.HandleUpscale, tt.target, tt.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rr.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
				t.Errorf("expected an error body, got %q", rr.Body.String())
			}
			if len(fin.reqs) != 0 {
				t.Errorf("expected no finalization, got %+v", fin.reqs)
			}
		})
	}
}

func TestUpscale_FinalizeFailure(t *testing.T) {
	h, _, fin := newTestHandler("")
	fin.err = errors.New("store full image: object already exists")

	rr := post(h.HandleUpscale, "/webhook/upscale?category=sakura", `{"status":"succeeded","output":["https://a/1.jpg"]}`, nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "already exists") {
		t.Errorf("internal details leaked to client: %s", rr.Body.String())
	}
}

// --- Signatures ---

func TestSignature_Valid(t *testing.T) {
	h, _, fin := newTestHandler(testSecret)
	now := time.Unix(1730000000, 0)
	h.now = func() time.Time { return now }
	body := `{"id":"up-1","status":"succeeded","output":["https://a/1.jpg"]}`

	rr := post(h.HandleUpscale, "/webhook/upscale?category=sakura", body, signedHeader("msg_1", now, body))

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if len(fin.reqs) != 1 {
		t.Errorf("expected one finalization, got %d", len(fin.reqs))
	}
}

func TestSignature_Rejected(t *testing.T) {
	now := time.Unix(1730000000, 0)
	body := `{"id":"g","status":"succeeded","output":"https://a/1.jpg"}`
	tampered := signedHeader("msg_1", now, `{"id":"g","status":"succeeded","output":"https://evil/1.jpg"}`)
	stale := signedHeader("msg_1", now.Add(-time.Hour), body)

	for name, header := range map[string]http.Header{"missing": nil, "tampered": tampered, "stale": stale} {
		h, up, _ := newTestHandler(testSecret)
		h.now = func() time.Time { return now }
		rr := post(h.HandleGenerated, "/webhook/generated?category=sakura", body, header)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", name, rr.Code)
		}
		if len(up.calls) != 0 {
			t.Errorf("%s: expected zero upscale calls", name)
		}
	}
}

// --- Routing ---

func TestRegister(t *testing.T) {
	h, up, fin := newTestHandler("")
	mux := http.NewServeMux()
	h.Register(mux)

	gen := httptest.NewRequest(http.MethodPost, "/webhook/generated?category=kawaii",
		strings.NewReader(`{"status":"succeeded","output":"https://a/g.jpg"}`))
	mux.ServeHTTP(httptest.NewRecorder(), gen)
	up2 := httptest.NewRequest(http.MethodPost, "/webhook/upscale?category=kawaii",
		strings.NewReader(`{"status":"succeeded","output":["https://a/u.jpg"]}`))
	mux.ServeHTTP(httptest.NewRecorder(), up2)

	if len(up.calls) != 1 || len(fin.reqs) != 1 {
		t.Errorf("expected one call per stage, got upscale=%d finalize=%d", len(up.calls), len(fin.reqs))
	}
}
