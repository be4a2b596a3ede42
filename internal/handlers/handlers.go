package handlers

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/liveness-check/internal/imageprocessor"
	"github.com/example/liveness-check/internal/liveness"
	"github.com/example/liveness-check/internal/livenessclient"
	"github.com/example/liveness-check/internal/usecase"
)

//go:embed templates/*.html
var templatesFS embed.FS

// FileField is the form field both upload and camera forms post the image in.
const FileField = "file"

type source int

const (
	sourceUpload source = iota
	// camera captures carry no meaningful filename; the client default is used.
	sourceCamera
)

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.LivenessUseCase) {
	router.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", pageData{})
	})
	router.POST("/check", pageHandler(uc, sourceUpload))
	router.POST("/capture", pageHandler(uc, sourceCamera))

	api := router.Group("/api/v1")
	api.POST("/check", apiHandler(uc, sourceUpload))
	api.POST("/capture", apiHandler(uc, sourceCamera))
}

func apiHandler(uc *usecase.LivenessUseCase, src source) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := readAsset(c, src)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		outcome := uc.Check(c.Request.Context(), asset)
		status, message := describe(outcome)
		if outcome.Kind != usecase.OutcomeVerdict {
			body := gin.H{"request_id": outcome.RequestID, "error": message}
			var classErr *liveness.ClassificationError
			if errors.As(outcome.Err, &classErr) {
				body["status_code"] = classErr.StatusCode
			}
			c.JSON(status, body)
			return
		}

		c.JSON(status, gin.H{
			"request_id":           outcome.RequestID,
			"tag":                  outcome.Verdict.Tag,
			"severity":             outcome.Verdict.Severity.String(),
			"color":                outcome.Verdict.Severity.Color(),
			"confidence":           outcome.Verdict.Confidence,
			"displayed_confidence": outcome.Verdict.DisplayedConfidence(),
			"raw":                  outcome.Response.Payload,
		})
	}
}

func pageHandler(uc *usecase.LivenessUseCase, src source) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := readAsset(c, src)
		if err != nil {
			c.HTML(http.StatusBadRequest, "index.html", pageData{Error: err.Error()})
			return
		}

		outcome := uc.Check(c.Request.Context(), asset)
		status, message := describe(outcome)
		data := pageData{
			RequestID: outcome.RequestID,
			Filename:  asset.Filename,
			Error:     message,
		}
		if outcome.Image != nil {
			data.ImageURI = template.URL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(outcome.Image.Data))
		}
		if outcome.Kind == usecase.OutcomeVerdict {
			data.Verdict = &verdictView{
				Tag:        outcome.Verdict.Tag,
				Color:      outcome.Verdict.Severity.Color(),
				Confidence: outcome.Verdict.DisplayedConfidence(),
			}
			data.RawPayload = prettyPayload(outcome.Response)
		}
		c.HTML(status, "index.html", data)
	}
}

type pageData struct {
	RequestID  string
	Filename   string
	ImageURI   template.URL
	Verdict    *verdictView
	RawPayload string
	Error      string
}

type verdictView struct {
	Tag        string
	Color      string
	Confidence string
}

var errMissingImage = errors.New("image file is required")

func readAsset(c *gin.Context, src source) (imageprocessor.Asset, error) {
	file, err := c.FormFile(FileField)
	if err != nil {
		return imageprocessor.Asset{}, errMissingImage
	}

	f, err := file.Open()
	if err != nil {
		return imageprocessor.Asset{}, errors.New("unable to open image")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return imageprocessor.Asset{}, errors.New("failed to read image")
	}

	asset := imageprocessor.Asset{
		Data:      data,
		MediaType: file.Header.Get("Content-Type"),
		Filename:  file.Filename,
	}
	if src == sourceCamera {
		asset.Filename = ""
	}
	return asset, nil
}

// describe maps an outcome onto the HTTP status and the user facing message.
func describe(outcome usecase.Outcome) (int, string) {
	switch outcome.Kind {
	case usecase.OutcomeVerdict:
		return http.StatusOK, ""
	case usecase.OutcomeDecodeError:
		var decodeErr *imageprocessor.DecodeError
		if errors.As(outcome.Err, &decodeErr) {
			return http.StatusUnprocessableEntity, "Could not read image: " + decodeErr.Reason
		}
		return http.StatusUnprocessableEntity, "Could not read image"
	case usecase.OutcomeTransportError:
		var transportErr *livenessclient.TransportError
		if errors.As(outcome.Err, &transportErr) && transportErr.Timeout() {
			return http.StatusGatewayTimeout, "Could not reach the liveness service"
		}
		return http.StatusBadGateway, "Could not reach the liveness service"
	case usecase.OutcomeClassificationError:
		var classErr *liveness.ClassificationError
		if errors.As(outcome.Err, &classErr) {
			return http.StatusBadGateway, classErr.Error()
		}
		return http.StatusBadGateway, "API Error"
	default:
		return http.StatusInternalServerError, "unexpected error"
	}
}

func prettyPayload(resp *liveness.Response) string {
	if resp == nil {
		return ""
	}
	if resp.Payload == nil {
		return string(resp.Body)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp.Payload, "", "  "); err != nil {
		return string(resp.Body)
	}
	return buf.String()
}
