package liveness

import "encoding/json"

// analysisPayload mirrors the success body. Fields are pre-populated with
// their defaults by defaultPayload, so absent or null values keep them.
type analysisPayload struct {
	ImageAnalysis struct {
		PredictionTag string `json:"prediction_tag"`
		LivenessCheck struct {
			Confidence float64 `json:"confidence"`
		} `json:"liveness_check"`
	} `json:"image_analysis"`
}

func defaultPayload() analysisPayload {
	var p analysisPayload
	p.ImageAnalysis.PredictionTag = TagUnknown
	p.ImageAnalysis.LivenessCheck.Confidence = 0
	return p
}

// parsePayload never fails: malformed JSON yields the defaults and a field
// of the wrong type leaves only that field at its default.
func parsePayload(body []byte) analysisPayload {
	p := defaultPayload()
	if len(body) == 0 || !json.Valid(body) {
		return p
	}
	_ = json.Unmarshal(body, &p)
	return p
}

// Classify turns resp into a Verdict, or a ClassificationError when the
// service did not answer 200.
func Classify(resp *Response) (Verdict, error) {
	if resp == nil {
		return Verdict{}, &ClassificationError{}
	}
	if !resp.OK() {
		return Verdict{}, &ClassificationError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	p := parsePayload(resp.Body)
	tag := p.ImageAnalysis.PredictionTag
	return Verdict{
		Tag:        tag,
		Severity:   SeverityForTag(tag),
		Confidence: p.ImageAnalysis.LivenessCheck.Confidence,
	}, nil
}
