// Package translate sends transcripts to a machine-translation service and
// tracks the latest batch of results.
package translate

import (
	"context"
	"fmt"
)

// Provider is the interface for translation backends.
type Provider interface {
	// Translate converts text from the source language to the target
	// language. Codes are ISO 639-1.
	Translate(ctx context.Context, text, source, target string) (string, error)
	Name() string
}

// Result is one translated rendition of the source text.
type Result struct {
	LanguageCode string `json:"language_code"`
	LanguageName string `json:"language_name"`
	Text         string `json:"text"`
}

// LanguageError reports the target language whose request failed a batch.
type LanguageError struct {
	Code string
	Name string
	Err  error
}

func (e *LanguageError) Error() string {
	return fmt.Sprintf("translation failed for %s (%s): %v", e.Name, e.Code, e.Err)
}

func (e *LanguageError) Unwrap() error { return e.Err }
