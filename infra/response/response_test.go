package response

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, 200, "ok", map[string]string{"id": "123"})

	if rec.Code != 200 {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}

	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Message != "ok" {
		t.Errorf("expected message 'ok', got %q", resp.Message)
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, 400, "bad request", errors.New("missing field"))

	if rec.Code != 400 {
		t.Errorf("expected status 400, got %d", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}

	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error != "missing field" {
		t.Errorf("expected error 'missing field', got %q", resp.Error)
	}
}

func TestWriteRaw(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteRaw(rec, 200, []string{}); err != nil {
		t.Fatalf("WriteRaw failed: %v", err)
	}

	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array body, got %q", body)
	}
}
