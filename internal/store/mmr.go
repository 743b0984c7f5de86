package store

import (
	"math"
	"sort"

	"github.com/Aman-CERP/chatmydocs/internal/chunk"
)

// cosine returns the cosine similarity of a and b, or 0 for zero vectors.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// MMR selects k of candidates by maximal marginal relevance and returns
// their indices in selection order. lambda 1 is pure relevance, 0 pure
// diversity. The first pick is always the most similar candidate.
func MMR(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return nil
	}

	rel := make([]float64, len(candidates))
	for i, c := range candidates {
		rel[i] = float64(cosine(query, c))
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// maxSim[i] is the highest similarity of candidate i to anything selected.
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := rel[i]
			if len(selected) > 0 {
				score = lambda*rel[i] - (1-lambda)*maxSim[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
		for i := range candidates {
			if !used[i] {
				if s := float64(cosine(candidates[i], candidates[best])); s > maxSim[i] {
					maxSim[i] = s
				}
			}
		}
	}
	return selected
}

// rank orders records by similarity to vec, keeps the FetchK best and
// applies MMR when FetchK exceeds K.
func rank(vec []float32, records []Record, opts QueryOptions) []Result {
	opts = opts.withDefaults()

	type scored struct {
		rec Record
		sim float32
	}
	pool := make([]scored, len(records))
	for i, r := range records {
		pool[i] = scored{rec: r, sim: cosine(vec, r.Vector)}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].sim > pool[j].sim })
	if len(pool) > opts.FetchK {
		pool = pool[:opts.FetchK]
	}

	order := make([]int, 0, opts.K)
	if opts.FetchK > opts.K {
		vecs := make([][]float32, len(pool))
		for i, p := range pool {
			vecs[i] = p.rec.Vector
		}
		order = MMR(vec, vecs, opts.K, opts.Lambda)
	} else {
		for i := 0; i < len(pool) && i < opts.K; i++ {
			order = append(order, i)
		}
	}

	results := make([]Result, 0, len(order))
	for _, i := range order {
		p := pool[i]
		results = append(results, Result{
			Chunk: chunk.Chunk{
				ID:       p.rec.ID,
				Text:     p.rec.Text,
				Metadata: chunk.Metadata{Source: p.rec.Source},
			},
			Score: p.sim,
		})
	}
	return results
}
