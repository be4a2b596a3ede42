package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/liveness-check/internal/imageprocessor"
	"github.com/example/liveness-check/internal/liveness"
	"github.com/example/liveness-check/internal/livenessclient"
	"github.com/example/liveness-check/internal/usecase"
)

type stubSubmitter struct {
	resp      *liveness.Response
	err       error
	filenames []string
}

func (s *stubSubmitter) Submit(_ context.Context, _ []byte, filename string) (*liveness.Response, error) {
	s.filenames = append(s.filenames, filename)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func newTestRouter(submitter liveness.Submitter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	uc := usecase.NewLivenessUseCase(imageprocessor.NewNormalizer(90), submitter, zap.NewNop())
	return NewRouter(uc, zap.NewNop())
}

func realResponse() *liveness.Response {
	return liveness.NewResponse(http.StatusOK,
		[]byte(`{"image_analysis":{"prediction_tag":"REAL","liveness_check":{"confidence":0.97}}}`))
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{B: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postImage(t *testing.T, router *gin.Engine, path, filename, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := buildMultipartBody(t, filename, contentType, payload)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeJSON(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %v body=%s", err, resp.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&stubSubmitter{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := decodeJSON(t, resp)["status"]; got != "ok" {
		t.Fatalf("expected status ok, got %v", got)
	}
}

func TestAPICheckReturnsVerdict(t *testing.T) {
	submitter := &stubSubmitter{resp: realResponse()}
	router := newTestRouter(submitter)

	resp := postImage(t, router, "/api/v1/check", "selfie.png", "image/png", testPNG(t))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d body=%s", http.StatusOK, resp.Code, resp.Body.String())
	}
	out := decodeJSON(t, resp)
	if out["tag"] != "REAL" || out["severity"] != "positive" || out["color"] != "#28a745" {
		t.Fatalf("unexpected verdict fields: %v", out)
	}
	if out["displayed_confidence"] != "97.00%" {
		t.Fatalf("expected 97.00%%, got %v", out["displayed_confidence"])
	}
	if _, ok := out["raw"].(map[string]any); !ok {
		t.Fatalf("expected raw payload object, got %T", out["raw"])
	}
	if out["request_id"] != resp.Header().Get(RequestIDHeader) {
		t.Fatalf("request id %v does not match header %q", out["request_id"], resp.Header().Get(RequestIDHeader))
	}
	if len(submitter.filenames) != 1 || submitter.filenames[0] != "selfie.png" {
		t.Fatalf("expected upload filename to be forwarded, got %v", submitter.filenames)
	}
}

func TestAPICaptureDropsFilename(t *testing.T) {
	submitter := &stubSubmitter{resp: realResponse()}
	router := newTestRouter(submitter)

	resp := postImage(t, router, "/api/v1/capture", "camera-frame.png", "image/png", testPNG(t))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if len(submitter.filenames) != 1 || submitter.filenames[0] != "" {
		t.Fatalf("expected camera submission without filename, got %v", submitter.filenames)
	}
}

func TestAPIReusesInboundRequestID(t *testing.T) {
	router := newTestRouter(&stubSubmitter{resp: realResponse()})

	body, ct := buildMultipartBody(t, "a.png", "image/png", testPNG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/check", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(RequestIDHeader, "req-42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	if got := decodeJSON(t, resp)["request_id"]; got != "req-42" {
		t.Fatalf("expected request id in body, got %v", got)
	}
}

func TestAPIOutcomeStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		submitter *stubSubmitter
		payload   []byte
		status    int
		message   string
	}{
		{
			name:      "undecodable image",
			submitter: &stubSubmitter{resp: realResponse()},
			payload:   []byte("definitely not an image"),
			status:    http.StatusUnprocessableEntity,
			message:   "Could not read image: ",
		},
		{
			name:      "transport timeout",
			submitter: &stubSubmitter{err: &livenessclient.TransportError{Err: context.DeadlineExceeded}},
			payload:   nil,
			status:    http.StatusGatewayTimeout,
			message:   "Could not reach the liveness service",
		},
		{
			name:      "transport failure",
			submitter: &stubSubmitter{err: &livenessclient.TransportError{Err: fmt.Errorf("connection refused")}},
			payload:   nil,
			status:    http.StatusBadGateway,
			message:   "Could not reach the liveness service",
		},
		{
			name:      "service error",
			submitter: &stubSubmitter{resp: liveness.NewResponse(http.StatusInternalServerError, []byte("boom"))},
			payload:   nil,
			status:    http.StatusBadGateway,
			message:   "API Error: 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.submitter)
			payload := tt.payload
			if payload == nil {
				payload = testPNG(t)
			}

			resp := postImage(t, router, "/api/v1/check", "x.png", "image/png", payload)

			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d body=%s", tt.status, resp.Code, resp.Body.String())
			}
			msg, _ := decodeJSON(t, resp)["error"].(string)
			if !strings.HasPrefix(msg, tt.message) {
				t.Fatalf("expected message starting with %q, got %q", tt.message, msg)
			}
		})
	}
}

func TestAPIServiceErrorIncludesStatusCode(t *testing.T) {
	router := newTestRouter(&stubSubmitter{resp: liveness.NewResponse(http.StatusUnauthorized, []byte(`{"detail":"bad key"}`))})

	resp := postImage(t, router, "/api/v1/check", "x.png", "image/png", testPNG(t))

	if got := decodeJSON(t, resp)["status_code"]; got != float64(http.StatusUnauthorized) {
		t.Fatalf("expected status_code 401, got %v", got)
	}
}

func TestAPIMissingFile(t *testing.T) {
	submitter := &stubSubmitter{resp: realResponse()}
	router := newTestRouter(submitter)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/check", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=none")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if len(submitter.filenames) != 0 {
		t.Fatalf("expected no submission, got %d", len(submitter.filenames))
	}
}

func TestIndexRendersForms(t *testing.T) {
	router := newTestRouter(&stubSubmitter{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	body := resp.Body.String()
	for _, want := range []string{`action="/check"`, `action="/capture"`, `capture="user"`, "Run Liveness Check"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}
}

func TestPageCheckRendersVerdict(t *testing.T) {
	router := newTestRouter(&stubSubmitter{resp: realResponse()})

	resp := postImage(t, router, "/check", "selfie.png", "image/png", testPNG(t))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	body := resp.Body.String()
	for _, want := range []string{"REAL", "97.00%", "data:image/jpeg;base64,", "<details>", "selfie.png"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}
}

func TestPageCaptureRendersServiceError(t *testing.T) {
	submitter := &stubSubmitter{resp: liveness.NewResponse(http.StatusInternalServerError, []byte("internal detail"))}
	router := newTestRouter(submitter)

	resp := postImage(t, router, "/capture", "frame.png", "image/png", testPNG(t))

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "API Error: 500") {
		t.Fatalf("expected page to show the service error")
	}
	if strings.Contains(body, "internal detail") {
		t.Fatalf("error body must not be rendered")
	}
	if len(submitter.filenames) != 1 || submitter.filenames[0] != "" {
		t.Fatalf("expected camera submission without filename, got %v", submitter.filenames)
	}
}
