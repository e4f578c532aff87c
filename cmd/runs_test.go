package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/factharbor/verify-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	runs := []model.VerificationRun{
		{
			ID:        "run-1",
			Status:    model.RunStatusComplete,
			Variant:   model.VariantStandard,
			Result:    &model.AnalysisResult{Verdicts: make([]model.ClaimVerdict, 3)},
			CreatedAt: time.Date(2026, time.January, 5, 9, 30, 0, 0, time.UTC),
		},
		{
			ID:        "run-2",
			Status:    model.RunStatusFailed,
			Variant:   model.VariantDeep,
			CreatedAt: time.Date(2026, time.January, 6, 14, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "3")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "-", "runs without a result show a dash for claims")
	assert.Contains(t, out, "2026-01-05 09:30")
}
