package nl2sql

import "context"

// Models maps a call purpose to the model identifier serving it, so different
// models can handle first-pass generation and repair without hard-coding
// names at call sites.
type Models struct {
	Generate string
	Repair   string
}

type Request struct {
	Model    string
	Question string
	Context  string
}

// Translator is the language-model capability: a question plus grounding
// context in, raw text attempting to satisfy the prompt out.
type Translator interface {
	Complete(ctx context.Context, req Request) (string, error)
}
