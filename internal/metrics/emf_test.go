package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func captureFlush(t *testing.T, fn func()) []byte {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)
	fn()
	return buf.Bytes()
}

func TestNew_AutoDimension(t *testing.T) {
	initOnce.Do(func() {})
	functionName = "wallpaper-lambda"
	defer func() { functionName = "" }()

	r := New(Namespace)
	if r.dimensions["FunctionName"] != "wallpaper-lambda" {
		t.Errorf("expected FunctionName dimension, got %v", r.dimensions)
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	initOnce.Do(func() {})
	functionName = ""

	output := captureFlush(t, func() {
		New(Namespace).
			Dimension("Category", "sakura").
			Metric("FinalizeLatencyMs", 812, UnitMilliseconds).
			Count("WallpaperFinalized").
			Property("filename", "sakura_00001").
			Flush()
	})

	var doc map[string]interface{}
	if err := json.Unmarshal(output, &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]interface{})
	if !ok || len(cwArr) != 1 {
		t.Fatal("CloudWatchMetrics should hold one entry")
	}
	cw := cwArr[0].(map[string]interface{})
	if cw["Namespace"] != Namespace {
		t.Errorf("expected namespace %s, got %v", Namespace, cw["Namespace"])
	}
	defs := cw["Metrics"].([]interface{})
	if first := defs[0].(map[string]interface{}); first["Name"] != "FinalizeLatencyMs" {
		t.Errorf("expected metric definitions sorted by name, got %v", defs)
	}

	if doc["Category"] != "sakura" {
		t.Errorf("expected Category=sakura, got %v", doc["Category"])
	}
	if doc["FinalizeLatencyMs"] != float64(812) {
		t.Errorf("expected FinalizeLatencyMs=812, got %v", doc["FinalizeLatencyMs"])
	}
	if doc["WallpaperFinalized"] != float64(1) {
		t.Errorf("expected WallpaperFinalized=1, got %v", doc["WallpaperFinalized"])
	}
	if doc["filename"] != "sakura_00001" {
		t.Errorf("expected filename property, got %v", doc["filename"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	output := captureFlush(t, func() { New("Test").Flush() })
	if len(output) != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", output)
	}
}

func TestRecorder_Since(t *testing.T) {
	rec := New("Test").Since("LatencyMs", time.Now().Add(-50*time.Millisecond))
	v, ok := rec.values["LatencyMs"].(float64)
	if !ok || v < 50 {
		t.Errorf("expected at least 50ms, got %v", rec.values["LatencyMs"])
	}
	if rec.metrics["LatencyMs"].Unit != UnitMilliseconds {
		t.Errorf("expected unit Milliseconds, got %s", rec.metrics["LatencyMs"].Unit)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Test").
		Dimension("Endpoint", "/api/download").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("method", "POST")

	if rec.dimensions["Endpoint"] != "/api/download" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if rec.properties["method"] != "POST" {
		t.Error("chaining Property failed")
	}
}
