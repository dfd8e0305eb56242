package grading

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

const gradingPrompt = `Assess the cleanliness of the place in this photo.
Respond with a single JSON object, nothing else:
{"grade": "A|B|C|D|E", "confidence": 0.0-1.0, "summary": "<one sentence, same language as any visible signage, default Indonesian>"}
A = very clean, E = heavily littered.`

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.GenerationConfig.ResponseMIMEType = "application/json"
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) GradePhoto(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	if len(image) == 0 {
		return nil, errors.New("grading: empty image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	resp, err := v.model.GenerateContent(ctx,
		vertexgenai.Blob{MIMEType: mimeType, Data: image},
		vertexgenai.Text(gradingPrompt),
	)
	if err != nil {
		return nil, err
	}

	var raw strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				raw.WriteString(string(t))
			}
		}
	}

	out, err := parseResult(raw.String())
	if err != nil {
		return nil, err
	}
	return out, nil
}

var validGrades = map[string]bool{"A": true, "B": true, "C": true, "D": true, "E": true}

func parseResult(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	// tolerate markdown fences despite the JSON response mime type
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, errors.New("grading: model returned unparseable assessment")
	}

	r.Grade = strings.ToUpper(strings.TrimSpace(r.Grade))
	if !validGrades[r.Grade] {
		return nil, errors.New("grading: model returned grade outside A-E")
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	return &r, nil
}
