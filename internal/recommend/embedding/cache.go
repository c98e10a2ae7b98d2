// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/coursematch/internal/metrics"
)

// Key prefix for cached embeddings in BadgerDB
const embeddingKeyPrefix = "emb:"

// Encoder is the batch interface shared by ModelEncoder and CachedEncoder.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CacheStats reports cache effectiveness since the encoder was created.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Writes uint64 `json:"writes"`
	Errors uint64 `json:"errors"`
}

// CachedEncoder serves embeddings from BadgerDB and only sends cache
// misses to the wrapped encoder. Entries are keyed by model id and the
// SHA-256 of the text, so changing the model never returns stale vectors.
//
// Cache failures never fail a batch: they are logged and the affected
// texts are encoded by the inner encoder instead.
type CachedEncoder struct {
	inner   Encoder
	db      *badger.DB
	modelID string
	logger  zerolog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	writes atomic.Uint64
	errs   atomic.Uint64
}

// OpenCache opens the BadgerDB embedding cache at dir. With inMemory set
// nothing is written to disk and dir is ignored.
func OpenCache(dir string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // zerolog handles our logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return db, nil
}

// NewCachedEncoder wraps inner with the cache in db.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCachedEncoder(inner Encoder, db *badger.DB, modelID string, logger zerolog.Logger) *CachedEncoder {
	return &CachedEncoder{
		inner:   inner,
		db:      db,
		modelID: modelID,
		logger:  logger.With().Str("component", "embedding_cache").Logger(),
	}
}

// Dimensions returns the inner encoder's width.
func (c *CachedEncoder) Dimensions() int {
	return c.inner.Dimensions()
}

// Encode returns one vector per text, in order.
func (c *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([][]byte, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	found := c.lookup(keys, out)

	// Deduplicate misses so a text repeated in the batch is encoded once.
	missIdx := make(map[string][]int)
	var missTexts []string
	var missKeys [][]byte
	for i := range texts {
		if out[i] != nil {
			continue
		}
		k := string(keys[i])
		if _, ok := missIdx[k]; !ok {
			missTexts = append(missTexts, texts[i])
			missKeys = append(missKeys, keys[i])
		}
		missIdx[k] = append(missIdx[k], i)
	}

	misses := len(texts) - found
	c.hits.Add(uint64(found))
	c.misses.Add(uint64(misses))
	metrics.RecordCacheLookup(found, misses)

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Encode(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEncoding, len(vecs), len(missTexts))
	}

	for j, vec := range vecs {
		for _, i := range missIdx[string(missKeys[j])] {
			out[i] = vec
		}
	}

	c.store(missKeys, vecs)
	return out, nil
}

// Stats returns a snapshot of the cache counters.
func (c *CachedEncoder) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
		Errors: c.errs.Load(),
	}
}

func (c *CachedEncoder) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(embeddingKeyPrefix + c.modelID + ":" + hex.EncodeToString(sum[:]))
}

// lookup fills out with cached vectors and returns how many were found.
func (c *CachedEncoder) lookup(keys [][]byte, out [][]float32) int {
	dims := c.inner.Dimensions()
	found := 0

	err := c.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get embedding: %w", err)
			}
			err = item.Value(func(val []byte) error {
				vec, ok := decodeVector(val, dims)
				if !ok {
					return nil // wrong width, re-encode
				}
				out[i] = vec
				found++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn().Err(err).Msg("embedding cache read failed, encoding without cache")
		for i := range out {
			out[i] = nil
		}
		return 0
	}
	return found
}

func (c *CachedEncoder) store(keys [][]byte, vecs [][]float32) {
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	for i, key := range keys {
		if err := wb.Set(key, encodeVector(vecs[i])); err != nil {
			c.errs.Add(1)
			c.logger.Warn().Err(err).Msg("embedding cache write failed")
			return
		}
	}
	if err := wb.Flush(); err != nil {
		c.errs.Add(1)
		c.logger.Warn().Err(err).Msg("embedding cache flush failed")
		return
	}
	c.writes.Add(uint64(len(keys)))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float32, bool) {
	if len(buf)%4 != 0 || (dims > 0 && len(buf) != 4*dims) {
		return nil, false
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, true
}
