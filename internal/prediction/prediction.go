// Package prediction reduces a classifier's raw per-class scores to a single
// labeled, thresholded decision.
package prediction

import (
	"errors"
	"math"

	"github.com/cozy-creator/cattleid/internal/labels"
)

// ConfidenceThreshold is the top score below which a prediction is reported
// as not recognized.
const ConfidenceThreshold float32 = 0.5

const (
	NotRecognized    = "Not recognized"
	PredictionFailed = "Prediction failed"
)

var ErrNoScores = errors.New("model output has no usable scores")

type Status string

const (
	StatusRecognized    Status = "recognized"
	StatusNotRecognized Status = "not_recognized"
	StatusFailed        Status = "failed"
)

type Result struct {
	RequestID  string  `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
	Model      string  `json:"model,omitempty" msgpack:"model,omitempty"`
	ID         string  `json:"id,omitempty" msgpack:"id,omitempty"`
	Confidence float32 `json:"confidence" msgpack:"confidence"`
	Index      int     `json:"index" msgpack:"index"`
	Status     Status  `json:"status" msgpack:"status"`
	Error      string  `json:"error,omitempty" msgpack:"error,omitempty"`
}

func (r *Result) Failed() bool {
	return r.Status == StatusFailed
}

// Failed is the generic outcome reported when inference errors; the cause
// is logged, never returned to the client.
func Failed() Result {
	return Result{Index: -1, Status: StatusFailed, Error: PredictionFailed}
}

// Argmax returns the index and value of the highest score. Ties resolve to
// the lowest index; NaN scores are ignored.
func Argmax(scores []float32) (int, float32, error) {
	best := -1
	var max float32

	for i, score := range scores {
		if math.IsNaN(float64(score)) {
			continue
		}

		if best == -1 || score > max {
			best, max = i, score
		}
	}

	if best == -1 {
		return -1, 0, ErrNoScores
	}

	return best, max, nil
}

// Decide picks the top class. Below ConfidenceThreshold the result is
// "Not recognized" with the raw confidence; otherwise the class is named
// through table, falling back to "Class {index}".
func Decide(scores []float32, table labels.Table) (Result, error) {
	index, confidence, err := Argmax(scores)
	if err != nil {
		return Failed(), err
	}

	if confidence < ConfidenceThreshold {
		return Result{
			ID:         NotRecognized,
			Confidence: confidence,
			Index:      index,
			Status:     StatusNotRecognized,
		}, nil
	}

	return Result{
		ID:         table.Name(index),
		Confidence: confidence,
		Index:      index,
		Status:     StatusRecognized,
	}, nil
}
