package prediction

import (
	"errors"
	"math"
	"testing"

	"github.com/cozy-creator/cattleid/internal/labels"
)

func TestDecide(t *testing.T) {
	table := labels.Table{"Angus", "Holstein", "Hereford", "Jersey", "Brahman"}
	nan := float32(math.NaN())

	tests := []struct {
		name       string
		scores     []float32
		table      labels.Table
		wantID     string
		wantConf   float32
		wantIndex  int
		wantStatus Status
	}{
		{
			name:   "recognized",
			scores: []float32{0.1, 0.9, 0.3}, table: table,
			wantID: "Holstein", wantConf: 0.9, wantIndex: 1, wantStatus: StatusRecognized,
		},
		{
			name:   "below threshold",
			scores: []float32{0.4, 0.2, 0.1}, table: table,
			wantID: NotRecognized, wantConf: 0.4, wantIndex: 0, wantStatus: StatusNotRecognized,
		},
		{
			name:   "exactly at threshold",
			scores: []float32{0.25, 0.5, 0.25}, table: table,
			wantID: "Holstein", wantConf: 0.5, wantIndex: 1, wantStatus: StatusRecognized,
		},
		{
			name:   "index past table",
			scores: []float32{0, 0, 0, 0, 0, 0, 0, 0.95}, table: table,
			wantID: "Class 7", wantConf: 0.95, wantIndex: 7, wantStatus: StatusRecognized,
		},
		{
			name:   "empty table",
			scores: []float32{0.2, 0.8}, table: labels.Table{},
			wantID: "Class 1", wantConf: 0.8, wantIndex: 1, wantStatus: StatusRecognized,
		},
		{
			name:   "tie resolves to lowest index",
			scores: []float32{0.5, 0.5}, table: table,
			wantID: "Angus", wantConf: 0.5, wantIndex: 0, wantStatus: StatusRecognized,
		},
		{
			name:   "nan ignored",
			scores: []float32{nan, 0.7, 0.2}, table: table,
			wantID: "Holstein", wantConf: 0.7, wantIndex: 1, wantStatus: StatusRecognized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.scores, tt.table)
			if err != nil {
				t.Fatalf("Decide returned error: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, got.ID)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("expected confidence %v, got %v", tt.wantConf, got.Confidence)
			}
			if got.Index != tt.wantIndex {
				t.Errorf("expected index %d, got %d", tt.wantIndex, got.Index)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, got.Status)
			}
		})
	}
}

func TestDecideWithoutScores(t *testing.T) {
	for _, scores := range [][]float32{nil, {float32(math.NaN())}} {
		got, err := Decide(scores, nil)
		if !errors.Is(err, ErrNoScores) {
			t.Errorf("expected ErrNoScores, got %v", err)
		}
		if !got.Failed() || got.Error != PredictionFailed {
			t.Errorf("expected failed result, got %+v", got)
		}
	}
}
