// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

// Package embedding provides text encoders for the recommendation index.
//
// ModelEncoder turns a single-text embedding model into a batch Encoder:
// inputs are truncated to the token budget, a batch is fanned out over a
// bounded worker group, and an input the model still rejects as too long is
// retried shorter. The llama subpackage supplies the model (a GGUF
// sentence-embedding model run through llama.cpp). CachedEncoder wraps any
// encoder with a BadgerDB cache keyed by text hash.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/coursematch/internal/metrics"
)

var (
	// ErrModelLoad is returned when the model weights cannot be loaded.
	ErrModelLoad = errors.New("failed to load embedding model")

	// ErrEncoding is returned when a text in a batch cannot be encoded.
	ErrEncoding = errors.New("failed to encode text")

	// ErrInputTooLong is returned by a TextModel when an input exceeds what
	// the model can take in one pass.
	ErrInputTooLong = errors.New("input exceeds model context")
)

const (
	// DefaultMaxTokens is the input budget applied before encoding.
	DefaultMaxTokens = 128

	// RunesPerToken bounds the characters kept per token of budget, so text
	// without whitespace (CJK, URLs, base64) is cut as well.
	RunesPerToken = 4

	// maxWorkers matches the context pool of the llama.cpp vectorizer.
	maxWorkers = 16

	// minRetryRunes stops halving an input the model keeps rejecting.
	minRetryRunes = 8
)

// VectorizerConfig configures the local model.
type VectorizerConfig struct {
	// ModelPath is the GGUF model file.
	ModelPath string

	// GPULayers is the number of layers offloaded to the GPU (0 = CPU only).
	GPULayers int

	// MaxTokens truncates longer inputs. Words are used as the token unit,
	// with at most RunesPerToken runes kept per token.
	MaxTokens int

	// Workers is the number of texts encoded at once (0 = NumCPU, at most 16).
	Workers int
}

// WithDefaults fills unset fields.
func (c VectorizerConfig) WithDefaults() VectorizerConfig {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers > maxWorkers {
		c.Workers = maxWorkers
	}
	return c
}

// CheckModel reports whether the model file can be loaded at all.
// Failures wrap ErrModelLoad.
func (c VectorizerConfig) CheckModel() error {
	if c.ModelPath == "" {
		return fmt.Errorf("%w: model path is required", ErrModelLoad)
	}
	if _, err := os.Stat(c.ModelPath); err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return nil
}

// TextModel embeds one text at a time and is safe for concurrent use.
type TextModel interface {
	EmbedText(text string) ([]float32, error)
	Close() error
}

// ModelEncoder encodes batches with a TextModel. It is safe for concurrent use.
type ModelEncoder struct {
	cfg    VectorizerConfig
	logger zerolog.Logger
	dims   int

	// mu guards model against Close while batches are in flight.
	mu    sync.RWMutex
	model TextModel
}

// NewModelEncoder wraps model, whose vectors are dims wide.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewModelEncoder(model TextModel, dims int, cfg VectorizerConfig, logger zerolog.Logger) *ModelEncoder {
	return &ModelEncoder{
		cfg:    cfg.WithDefaults(),
		logger: logger.With().Str("component", "embedding").Logger(),
		dims:   dims,
		model:  model,
	}
}

// Dimensions returns the width of every vector produced by Encode.
func (m *ModelEncoder) Dimensions() int {
	return m.dims
}

// Encode embeds each text, keeping input order. A failure on any text fails
// the whole batch. Encoding runs to completion once started.
func (m *ModelEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.model == nil {
		return nil, fmt.Errorf("%w: encoder closed", ErrEncoding)
	}

	start := time.Now()
	out := make([][]float32, len(texts))

	// The group context only stops scheduling after the first failure.
	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(m.cfg.Workers)
	for i, text := range texts {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			vec, err := m.embed(text)
			if err != nil {
				return fmt.Errorf("%w: text %d: %w", ErrEncoding, i, err)
			}
			if len(vec) != m.dims {
				return fmt.Errorf("%w: text %d: got %d dimensions, want %d", ErrEncoding, i, len(vec), m.dims)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics.RecordEncodeBatch(len(texts), time.Since(start))
	return out, nil
}

// embed truncates text to the budget and halves it while the model still
// reports it as too long.
func (m *ModelEncoder) embed(text string) ([]float32, error) {
	text = Truncate(text, m.cfg.MaxTokens)
	for {
		vec, err := m.model.EmbedText(text)
		if err == nil || !errors.Is(err, ErrInputTooLong) {
			return vec, err
		}
		n := utf8.RuneCountInString(text)
		if n <= minRetryRunes {
			return nil, err
		}
		m.logger.Debug().Int("runes", n).Msg("input too long for model, retrying shorter")
		text = truncateRunes(text, n/2)
	}
}

// Close releases the model after in-flight batches finish.
func (m *ModelEncoder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil
	}
	err := m.model.Close()
	m.model = nil
	return err
}

// Truncate keeps at most maxTokens whitespace-separated words of text, and
// at most maxTokens*RunesPerToken runes, normalizing whitespace. Empty input
// becomes a single space so every text yields a vector.
func Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return " "
	}
	if maxTokens <= 0 {
		return strings.Join(words, " ")
	}
	if len(words) > maxTokens {
		words = words[:maxTokens]
	}
	return truncateRunes(strings.Join(words, " "), maxTokens*RunesPerToken)
}

// truncateRunes cuts s to at most n runes without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimRight(s[:pos], " ")
		}
		i++
	}
	return s
}
