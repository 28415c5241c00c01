package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "geoportal"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithLayerCode(ctx, "rivers")
	ctx = WithComponent(ctx, "publish")
	l.InfoContext(ctx, "stage done", "stage", "loading", "features", 12)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":        "stage done",
		"level":      "info",
		"service":    "geoportal",
		"request_id": "req-1",
		"layer_code": "rivers",
		"component":  "publish",
		"stage":      "loading",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Fatalf("field %s=%v want %v (line=%s)", k, rec[k], v, buf.String())
		}
	}
	if rec["features"] != float64(12) {
		t.Fatalf("features=%v", rec["features"])
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Fatalf("missing timestamp")
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	id, _ := ctx.Value(ctxReqIDKey).(string)
	if len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
}
