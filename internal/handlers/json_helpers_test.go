package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orienta/internal/models"
	"orienta/internal/service"
	"orienta/pkg/validator"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestFailStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", service.NewValidationError("bad input"), http.StatusBadRequest},
		{"field errors", validator.FieldErrors{"code": "is required"}, http.StatusBadRequest},
		{"missing fields", &service.MissingFieldsError{Sections: []service.MissingSection{{Questions: []string{"q1"}}}}, http.StatusBadRequest},
		{"invalid state", &service.InvalidStateError{Reason: service.ReasonVersionNotEditable, Message: "draft only"}, http.StatusBadRequest},
		{"not found", &service.NotFoundError{Resource: "version", Key: 9}, http.StatusNotFound},
		{"conflict", &service.ConflictError{Reason: service.ReasonAnotherPrimaryExists, Message: "taken"}, http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("outer: %w", &service.ConflictError{Reason: "x"}), http.StatusConflict},
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"upstream", &service.UpstreamError{Op: "list", Err: errors.New("connection refused")}, http.StatusInternalServerError},
	}

	base := NewBase(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			base.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			env := decodeEnvelope(t, rec)
			if env.Success {
				t.Error("success must be false")
			}
			if env.Message == "" {
				t.Error("message must be set")
			}
		})
	}
}

func TestFailDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	NewBase(false).fail(rec, httptest.NewRequest(http.MethodPost, "/", nil), &service.MissingFieldsError{
		Sections: []service.MissingSection{{SectionID: 1, SectionTitle: "A", Questions: []string{"q1", "q2"}}},
	})

	var body struct {
		Details struct {
			Missing []string `json:"missing"`
		} `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if strings.Join(body.Details.Missing, ",") != "q1,q2" {
		t.Errorf("missing = %v", body.Details.Missing)
	}

	rec = httptest.NewRecorder()
	NewBase(false).fail(rec, httptest.NewRequest(http.MethodPost, "/", nil), &service.ValidationError{Message: "invalid answers", Unknown: []string{"zz"}})
	if !strings.Contains(rec.Body.String(), `"unknown":["zz"]`) {
		t.Errorf("unknown codes not reported: %s", rec.Body.String())
	}
}

func TestFailHidesCauseInProduction(t *testing.T) {
	cause := &service.UpstreamError{Op: "list", Err: errors.New("password authentication failed")}

	rec := httptest.NewRecorder()
	NewBase(true).fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), cause)
	if strings.Contains(rec.Body.String(), "password authentication") {
		t.Errorf("production response leaks cause: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	NewBase(false).fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), cause)
	if env := decodeEnvelope(t, rec); !strings.Contains(env.Error, "password authentication") {
		t.Errorf("development response should carry cause, got %+v", env)
	}
}

func TestOKNormalizesSlices(t *testing.T) {
	rec := httptest.NewRecorder()
	NewBase(false).ok(rec, http.StatusOK, &models.VersionDetail{
		Version: models.Version{ID: 1, Metadata: json.RawMessage(`{"a":1}`), CreatedAt: time.Now()},
	})

	body := rec.Body.String()
	if !strings.Contains(body, `"sections":[]`) {
		t.Errorf("nil slice not normalized: %s", body)
	}
	if !strings.Contains(body, `"metadata":{"a":1}`) {
		t.Errorf("raw JSON mangled: %s", body)
	}
}

func TestNormalizeKeepsNilRawMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	NewBase(false).ok(rec, http.StatusOK, models.Version{ID: 2})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"metadata":null`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"email":"a@example.com","password":"x"}`, false},
		{"empty", ``, true},
		{"malformed", `{"email":`, true},
		{"invalid email", `{"email":"nope","password":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req LoginRequest
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := decodeJSON(httptest.NewRecorder(), r, &req)
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeOptionalJSON(t *testing.T) {
	var req RecomputeRequest
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := decodeOptionalJSON(httptest.NewRecorder(), r, &req); err != nil {
		t.Fatalf("empty body should be accepted: %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit":-1}`))
	if err := decodeOptionalJSON(httptest.NewRecorder(), r, &req); err == nil {
		t.Error("negative limit should fail validation")
	}
}

func TestPathID(t *testing.T) {
	mux := http.NewServeMux()
	var got int64
	var gotErr error
	mux.HandleFunc("GET /versions/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = pathID(r, "id")
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/versions/42", nil))
	if gotErr != nil || got != 42 {
		t.Errorf("pathID() = %d, %v", got, gotErr)
	}

	for _, raw := range []string{"abc", "0", "-3"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/versions/"+raw, nil))
		var verr *service.ValidationError
		if !errors.As(gotErr, &verr) {
			t.Errorf("pathID(%q) error = %v, want ValidationError", raw, gotErr)
		}
	}
}

func TestLazyCSVWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := &lazyCSVWriter{w: rec, filename: "responses.csv"}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatal("headers written before first byte")
	}

	_, _ = lw.Write([]byte("a,b\n"))
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="responses.csv"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

type stubPinger struct{ err error }

func (s stubPinger) HealthCheck() error { return s.err }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(stubPinger{}, "1.2.3").Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"version":"1.2.3"`) {
		t.Errorf("healthy: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(stubPinger{err: errors.New("down")}, "1.2.3").Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}
