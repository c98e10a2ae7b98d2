// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import (
	"cmp"
	"math"
	"slices"
)

// ExcludedScore marks a candidate that must never be selected. It lies
// strictly below the cosine range [-1, 1].
const ExcludedScore = -2.0

// Scored is a ranked course id with its cosine similarity.
type Scored struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Cosine returns dot(a,b) / (|a| * |b|). It returns 0 when either vector has
// zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// scores computes the cosine similarity of query against every row, with
// excluded ids forced to ExcludedScore.
func (ix *Index) scores(query []float32, exclude []string) []float64 {
	out := make([]float64, len(ix.courses))
	qn := norm(query)
	for i := range out {
		if qn == 0 || ix.norms[i] == 0 || len(query) != ix.dims {
			continue
		}
		var dot float64
		for j, v := range ix.row(i) {
			dot += float64(v) * float64(query[j])
		}
		out[i] = dot / (qn * ix.norms[i])
	}
	for _, id := range exclude {
		if pos, ok := ix.positions[id]; ok {
			out[pos] = ExcludedScore
		}
	}
	return out
}

// topN orders positions by score descending with ties broken by lower
// position, drops excluded entries and keeps at most n. It never pads.
func (ix *Index) topN(scores []float64, n int) []Scored {
	if n <= 0 || len(scores) == 0 {
		return []Scored{}
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	out := make([]Scored, 0, min(n, len(order)))
	for _, pos := range order {
		if len(out) == n {
			break
		}
		s := scores[pos]
		if s <= ExcludedScore || math.IsNaN(s) {
			continue
		}
		out = append(out, Scored{ID: ix.courses[pos].ID, Score: s})
	}
	return out
}

// RecommendScored ranks courses against the profile of the enrolled ids,
// never returning an id from exclude. It returns an empty result when the
// index is untrained or none of the enrolled ids is indexed.
func (ix *Index) RecommendScored(enrolled, exclude []string, n int) []Scored {
	profile, ok := ix.Profile(enrolled)
	if !ok {
		return []Scored{}
	}
	return ix.RankVector(profile, exclude, n)
}

// Recommend is RecommendScored without the scores.
func (ix *Index) Recommend(enrolled, exclude []string, n int) []string {
	return ids(ix.RecommendScored(enrolled, exclude, n))
}

// RankVector ranks every indexed course against an arbitrary query vector.
func (ix *Index) RankVector(query []float32, exclude []string, n int) []Scored {
	if ix == nil || len(ix.courses) == 0 {
		return []Scored{}
	}
	return ix.topN(ix.scores(query, exclude), n)
}

// SimilarToScored ranks courses by similarity to the course id, excluding id
// itself. Unknown ids yield an empty result.
func (ix *Index) SimilarToScored(id string, n int) []Scored {
	if ix == nil {
		return []Scored{}
	}
	pos, ok := ix.positions[id]
	if !ok {
		return []Scored{}
	}
	return ix.topN(ix.scores(ix.row(pos), []string{id}), n)
}

// SimilarTo is SimilarToScored without the scores.
func (ix *Index) SimilarTo(id string, n int) []string {
	return ids(ix.SimilarToScored(id, n))
}

func ids(scored []Scored) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.ID
	}
	return out
}
