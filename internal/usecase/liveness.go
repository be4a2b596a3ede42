package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/liveness-check/internal/imageprocessor"
	"github.com/example/liveness-check/internal/liveness"
	"github.com/example/liveness-check/internal/livenessclient"
	"github.com/example/liveness-check/internal/logging"
)

// Normalizer defines the image preparation step needed by the use case.
type Normalizer interface {
	Normalize(asset imageprocessor.Asset) (*imageprocessor.NormalizedImage, error)
}

// OutcomeKind says which of the mutually exclusive results a run produced.
type OutcomeKind int

const (
	OutcomeVerdict OutcomeKind = iota
	OutcomeDecodeError
	OutcomeTransportError
	OutcomeClassificationError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVerdict:
		return "verdict"
	case OutcomeDecodeError:
		return "decode_error"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeClassificationError:
		return "classification_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one liveness check. Verdict is set only for
// OutcomeVerdict; Err is set for every other kind.
type Outcome struct {
	RequestID string
	Kind      OutcomeKind
	Verdict   liveness.Verdict
	Err       error
	// Image is the normalized image when normalization succeeded.
	Image *imageprocessor.NormalizedImage
	// Response is the raw service answer when one was received.
	Response *liveness.Response
}

// LivenessUseCase runs the normalize, submit and classify pipeline.
type LivenessUseCase struct {
	normalizer Normalizer
	submitter  liveness.Submitter
	logger     *zap.Logger
}

// NewLivenessUseCase constructs a new use case instance.
func NewLivenessUseCase(normalizer Normalizer, submitter liveness.Submitter, logger *zap.Logger) *LivenessUseCase {
	return &LivenessUseCase{
		normalizer: normalizer,
		submitter:  submitter,
		logger:     logger.Named("liveness_usecase"),
	}
}

// Check runs one liveness check for asset. It issues at most one call to
// the liveness service and never retries.
func (uc *LivenessUseCase) Check(ctx context.Context, asset imageprocessor.Asset) Outcome {
	requestID, ok := logging.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.check_liveness", requestID)
	outcome := Outcome{RequestID: requestID}

	image, err := uc.normalizer.Normalize(asset)
	if err != nil {
		outcome.Kind = OutcomeDecodeError
		outcome.Err = logging.NewOperationError("usecase.normalize_image", requestID, err)
		opLogger.Warn("image normalization failed", zap.Error(outcome.Err))
		return outcome
	}
	outcome.Image = image

	resp, err := uc.submitter.Submit(ctx, image.Data, asset.Filename)
	if err != nil {
		outcome.Kind = OutcomeTransportError
		outcome.Err = asTransportError(err, requestID)
		return outcome
	}
	outcome.Response = resp

	verdict, err := liveness.Classify(resp)
	if err != nil {
		outcome.Kind = OutcomeClassificationError
		outcome.Err = logging.NewOperationError("usecase.classify_response", requestID, err)
		opLogger.Warn("liveness service reported an error", zap.Int("status", resp.StatusCode))
		opLogger.Debug("liveness service error body", zap.ByteString("body", resp.Body))
		return outcome
	}

	outcome.Kind = OutcomeVerdict
	outcome.Verdict = verdict
	opLogger.Info("liveness check completed",
		zap.String("tag", verdict.Tag),
		zap.Stringer("severity", verdict.Severity),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("orientation", image.SourceOrientation),
	)
	return outcome
}

// asTransportError makes sure every submitter failure is reachable as a
// TransportError, whatever Submitter implementation produced it.
func asTransportError(err error, requestID string) error {
	var transportErr *livenessclient.TransportError
	if errors.As(err, &transportErr) {
		return err
	}
	return logging.NewOperationError("usecase.submit_image", requestID, &livenessclient.TransportError{Err: err})
}
