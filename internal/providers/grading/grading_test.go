package grading

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	r, err := parseResult(`{"grade":"c","confidence":0.82,"summary":"Sampah menumpuk di sudut taman."}`)
	require.NoError(t, err)
	require.Equal(t, "C", r.Grade)
	require.InDelta(t, 0.82, r.Confidence, 1e-9)
	require.NotEmpty(t, r.Summary)
}

func TestParseResultWithFences(t *testing.T) {
	r, err := parseResult("```json\n{\"grade\":\"A\",\"confidence\":1.4,\"summary\":\"Bersih.\"}\n```")
	require.NoError(t, err)
	require.Equal(t, "A", r.Grade)
	require.Equal(t, 1.0, r.Confidence, "confidence is clamped to [0,1]")
}

func TestParseResultRejectsBadGrade(t *testing.T) {
	_, err := parseResult(`{"grade":"Z","confidence":0.5,"summary":"?"}`)
	require.Error(t, err)

	_, err = parseResult(`not json at all`)
	require.Error(t, err)
}
