// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package llama loads a GGUF sentence-embedding model (e.g.
// all-MiniLM-L6-v2) through llama.cpp via kelindar/search.
//
// Importing this package loads the llama.cpp shared library at init, so
// only the server binary imports it. Batching, truncation and retries live
// in the parent embedding package.
package llama

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kelindar/search"
	"github.com/rs/zerolog"

	"github.com/tomtom215/coursematch/internal/recommend/embedding"
)

// sampleText is encoded once at startup to discover the model's output width.
const sampleText = "course"

// model adapts search.Vectorizer to embedding.TextModel.
type model struct {
	v *search.Vectorizer
}

func (m model) EmbedText(text string) ([]float32, error) {
	vec, err := m.v.EmbedText(text)
	if err != nil && strings.Contains(err.Error(), "exceeds batch size") {
		return nil, fmt.Errorf("%w: %w", embedding.ErrInputTooLong, err)
	}
	return vec, err
}

func (m model) Close() error {
	return m.v.Close()
}

// NewVectorizer loads the model and measures its output width. Any failure is
// wrapped in embedding.ErrModelLoad.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewVectorizer(cfg embedding.VectorizerConfig, logger zerolog.Logger) (*embedding.ModelEncoder, error) {
	if err := cfg.CheckModel(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	v, err := search.NewVectorizer(cfg.ModelPath, cfg.GPULayers)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", embedding.ErrModelLoad, cfg.ModelPath, err)
	}

	sample, err := v.EmbedText(sampleText)
	if err != nil || len(sample) == 0 {
		_ = v.Close() //nolint:errcheck // load already failed
		if err == nil {
			err = errors.New("model returned an empty embedding")
		}
		return nil, fmt.Errorf("%w: sample embedding: %w", embedding.ErrModelLoad, err)
	}

	logger.Info().
		Str("component", "embedding").
		Str("model_path", cfg.ModelPath).
		Int("gpu_layers", cfg.GPULayers).
		Int("workers", cfg.Workers).
		Int("dimensions", len(sample)).
		Msg("embedding model loaded")

	return embedding.NewModelEncoder(model{v: v}, len(sample), cfg, logger), nil
}
