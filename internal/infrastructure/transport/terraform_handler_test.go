package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"tfassist/internal/domain/entity"
)

type fakeTerraform struct {
	generateErr error
	explainErr  error
	validateErr error
	exitCode    int

	lastDescription string
	lastProvider    string
	lastCode        string
	explainCalls    int
}

func (f *fakeTerraform) GenerateTerraform(ctx context.Context, description, provider string) (entity.GenerationResponse, error) {
	f.lastDescription, f.lastProvider = description, provider
	if f.generateErr != nil {
		return entity.GenerationResponse{}, f.generateErr
	}
	return entity.GenerationResponse{TerraformCode: "resource \"aws_vpc\" \"main\" {}"}, nil
}

func (f *fakeTerraform) ValidateTerraform(ctx context.Context, code string) (entity.ValidationResponse, error) {
	f.lastCode = code
	if f.validateErr != nil {
		return entity.ValidationResponse{}, f.validateErr
	}
	return entity.NewValidationOutcome(f.exitCode).Response, nil
}

func (f *fakeTerraform) ExplainTerraform(ctx context.Context, code string) (entity.ExplanationResponse, error) {
	f.lastCode = code
	f.explainCalls++
	if f.explainErr != nil {
		return entity.ExplanationResponse{}, f.explainErr
	}
	return entity.ExplanationResponse{Explanation: "explained: " + code}, nil
}

func (f *fakeTerraform) AnalyzeTerraform(ctx context.Context, code string) (*entity.AnalysisResult, error) {
	f.lastCode = code
	return &entity.AnalysisResult{Passed: true, Findings: []entity.Finding{}}, nil
}

func (f *fakeTerraform) GeneratorInfo() (string, string) { return "fake", "fake-model" }

type fakeHistory struct {
	records map[string]*entity.RequestRecord
	filter  entity.RecordFilter
}

func (f *fakeHistory) Record(ctx context.Context, rec *entity.RequestRecord) {}

func (f *fakeHistory) GetRecord(ctx context.Context, id string) (*entity.RequestRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, entity.ErrRecordNotFound
	}
	return rec, nil
}

func (f *fakeHistory) ListRecords(ctx context.Context, filter entity.RecordFilter) ([]*entity.RequestRecord, error) {
	f.filter = filter
	out := []*entity.RequestRecord{}
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func newTestRouter(tf *fakeTerraform, hist *fakeHistory) *mux.Router {
	if hist == nil {
		hist = &fakeHistory{records: map[string]*entity.RequestRecord{}}
	}
	h := NewTerraformHandler(tf, hist, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

func TestGenerateTerraformOK(t *testing.T) {
	tf := &fakeTerraform{}
	w := do(newTestRouter(tf, nil), http.MethodPost, "/generate-terraform", "application/json",
		`{"description":"an s3 bucket","provider":"aws"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeMap(t, w)
	if _, ok := resp["terraform_code"].(string); !ok {
		t.Fatalf("expected string terraform_code, got %v", resp)
	}
	if tf.lastDescription != "an s3 bucket" || tf.lastProvider != "aws" {
		t.Fatalf("request not forwarded: %q %q", tf.lastDescription, tf.lastProvider)
	}
}

func TestGenerateTerraformAnyProviderAccepted(t *testing.T) {
	tf := &fakeTerraform{}
	w := do(newTestRouter(tf, nil), http.MethodPost, "/generate-terraform", "application/json",
		`{"description":"","provider":"my-private-cloud"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGenerateTerraformGeneratorFailure(t *testing.T) {
	tf := &fakeTerraform{generateErr: entity.GenerationError("generate terraform", errors.New("out of memory"))}
	w := do(newTestRouter(tf, nil), http.MethodPost, "/generate-terraform", "application/json",
		`{"description":"d","provider":"aws"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	detail, _ := decodeMap(t, w)["detail"].(string)
	if detail == "" || !strings.HasPrefix(detail, "Error generating code: ") || !strings.Contains(detail, "out of memory") {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestGenerateTerraformMalformedJSONIsClientError(t *testing.T) {
	w := do(newTestRouter(&fakeTerraform{}, nil), http.MethodPost, "/generate-terraform", "application/json", `{"description":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if _, ok := decodeMap(t, w)["detail"]; !ok {
		t.Fatal("expected detail in error body")
	}
}

func TestGenerateTerraformMissingField(t *testing.T) {
	w := do(newTestRouter(&fakeTerraform{}, nil), http.MethodPost, "/generate-terraform", "application/json", `{"description":"d"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestValidateTerraformExactBodies(t *testing.T) {
	cases := []struct {
		exit int
		want string
	}{
		{0, `{"validation":"success","details":"Terraform code is valid."}`},
		{1, `{"validation":"failure","details":"Terraform code is invalid."}`},
		{127, `{"validation":"failure","details":"Terraform code is invalid."}`},
	}
	for _, c := range cases {
		tf := &fakeTerraform{exitCode: c.exit}
		w := do(newTestRouter(tf, nil), http.MethodPost, "/validate-terraform", "text/plain", `terraform {}`)
		if w.Code != http.StatusOK {
			t.Fatalf("exit %d: expected 200, got %d", c.exit, w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != c.want {
			t.Errorf("exit %d: expected %s, got %s", c.exit, c.want, got)
		}
	}
}

func TestValidateTerraformError(t *testing.T) {
	tf := &fakeTerraform{validateErr: entity.PersistenceError("write terraform code", errors.New("read-only file system"))}
	w := do(newTestRouter(tf, nil), http.MethodPost, "/validate-terraform", "", "terraform {}")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	detail, _ := decodeMap(t, w)["detail"].(string)
	if !strings.HasPrefix(detail, "Error validating code: ") {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestReadTerraformCodeSources(t *testing.T) {
	cases := []struct {
		name        string
		target      string
		contentType string
		body        string
		want        string
	}{
		{"raw body", "/validate-terraform", "text/plain", "resource \"a\" \"b\" {}", "resource \"a\" \"b\" {}"},
		{"json string", "/validate-terraform", "application/json", `"terraform {}"`, "terraform {}"},
		{"json object", "/validate-terraform", "application/json; charset=utf-8", `{"terraform_code":"x = 1"}`, "x = 1"},
		{"json without key is raw", "/validate-terraform", "application/json", `{"other":1}`, `{"other":1}`},
		{"query parameter", "/validate-terraform?terraform_code=q%20%3D%201", "", "ignored", "q = 1"},
	}
	for _, c := range cases {
		tf := &fakeTerraform{}
		w := do(newTestRouter(tf, nil), http.MethodPost, c.target, c.contentType, c.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", c.name, w.Code)
		}
		if tf.lastCode != c.want {
			t.Errorf("%s: expected code %q, got %q", c.name, c.want, tf.lastCode)
		}
	}
}

func TestBodyTooLarge(t *testing.T) {
	h := NewTerraformHandler(&fakeTerraform{}, &fakeHistory{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), 8)
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	w := do(r, http.MethodPost, "/validate-terraform", "", strings.Repeat("x", 64))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestExplainEmptyBody(t *testing.T) {
	tf := &fakeTerraform{}
	w := do(newTestRouter(tf, nil), http.MethodPost, "/explain-terraform", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if tf.explainCalls != 1 {
		t.Fatalf("expected explain call, got %d", tf.explainCalls)
	}
	if got := decodeMap(t, w)["explanation"]; got != "explained: " {
		t.Fatalf("expected unmodified explanation, got %v", got)
	}
}

func TestExplainFailure(t *testing.T) {
	tf := &fakeTerraform{explainErr: errors.New("boom")}
	w := do(newTestRouter(tf, nil), http.MethodPost, "/explain-terraform", "", "x")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if detail := decodeMap(t, w)["detail"]; detail != "Error explaining code: boom" {
		t.Fatalf("unexpected detail %v", detail)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	w := do(newTestRouter(&fakeTerraform{}, nil), http.MethodPost, "/analyze-terraform", "", "terraform {}")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decodeMap(t, w)["passed"] != true {
		t.Fatal("expected passed=true")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	w := do(newTestRouter(&fakeTerraform{}, nil), http.MethodGet, "/generate-terraform", "", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	rec := entity.NewRequestRecord(entity.RecordKindValidate, "terraform {}")
	hist := &fakeHistory{records: map[string]*entity.RequestRecord{rec.ID: rec}}
	r := newTestRouter(&fakeTerraform{}, hist)

	w := do(r, http.MethodGet, "/api/v1/history/"+rec.ID, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decodeMap(t, w)["id"] != rec.ID {
		t.Fatal("unexpected record body")
	}

	w = do(r, http.MethodGet, "/api/v1/history/missing", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = do(r, http.MethodGet, "/api/v1/history?kind=validate&limit=5", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if hist.filter.Kind != entity.RecordKindValidate || hist.filter.Limit != 5 {
		t.Fatalf("filter not forwarded: %+v", hist.filter)
	}

	for _, bad := range []string{"/api/v1/history?kind=deploy", "/api/v1/history?limit=abc"} {
		if w := do(r, http.MethodGet, bad, "", ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	w := do(newTestRouter(&fakeTerraform{}, nil), http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeMap(t, w)
	if resp["ok"] != true || resp["model"] != "fake-model" {
		t.Fatalf("unexpected health body %v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(&fakeTerraform{}, nil)
	_ = do(r, http.MethodPost, "/validate-terraform", "", "terraform {}")

	w := do(r, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tfassist_http_requests_total") {
		t.Fatal("expected http metrics in exposition")
	}
}
