package livenessclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/liveness-check/internal/config"
	"github.com/example/liveness-check/internal/liveness"
	"github.com/example/liveness-check/internal/logging"
)

const (
	// APIKeyHeader carries the static credential.
	APIKeyHeader = "x-api-key"
	// FileField is the multipart field holding the image.
	FileField = "file"
	// DefaultFilename is sent when the caller has no filename, e.g. camera captures.
	DefaultFilename = "image.jpg"
	imageMediaType  = "image/jpeg"
)

// TransportError reports a call that could not complete: no response was
// received from the service.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("liveness service unreachable at %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because it ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Client submits images to the liveness detection endpoint.
type Client struct {
	endpoint   string
	apiKey     config.Secret
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Client from the process configuration.
func New(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: NewHTTPClient(cfg.Timeout),
		logger:     logger.Named("liveness_client"),
	}
}

// NewHTTPClient returns an http.Client whose whole exchange is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			TLSHandshakeTimeout:   timeout / 3,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Submit posts image as a single multipart part and returns whatever the
// service answered. Non-2xx answers are returned, not treated as errors.
func (c *Client) Submit(ctx context.Context, image []byte, filename string) (*liveness.Response, error) {
	requestID, _ := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(c.logger, "livenessclient.submit", requestID)
	if filename == "" {
		filename = DefaultFilename
	}

	body, contentType, err := buildMultipartBody(filename, image)
	if err != nil {
		return nil, c.transportError(opLogger, requestID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, c.transportError(opLogger, requestID, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey.Reveal())

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(opLogger, requestID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(opLogger, requestID, err)
	}

	opLogger.Info("liveness service responded",
		zap.Int("status", resp.StatusCode),
		zap.Int("image_bytes", len(image)),
		zap.Duration("latency", time.Since(started)),
	)
	return liveness.NewResponse(resp.StatusCode, raw), nil
}

func (c *Client) transportError(logger *zap.Logger, requestID string, err error) error {
	transportErr := &TransportError{Endpoint: c.endpoint, Err: err}
	wrapped := logging.NewOperationError("livenessclient.submit", requestID, transportErr)
	logger.Error("liveness call failed", zap.Error(wrapped), zap.Bool("timeout", transportErr.Timeout()))
	return wrapped
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildMultipartBody(filename string, image []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", imageMediaType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
