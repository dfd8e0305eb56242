package grading

import "context"

// Result is one cleanliness assessment of a photo.
type Result struct {
	Grade      string  `json:"grade"` // A (very clean) .. E (heavily littered)
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

type Oracle interface {
	GradePhoto(ctx context.Context, image []byte, mimeType string) (*Result, error)
	Close() error
}
