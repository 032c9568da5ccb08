package gallery

import "github.com/coder/hnsw"

// indexMaxNeighbors is the HNSW M parameter. 16 is a reasonable default for
// embeddings in the 128-768 dimension range.
const indexMaxNeighbors = 16

// nnIndex is an HNSW graph over the gallery, keyed by identity id. It is
// rebuilt whole on every store mutation and never mutated afterward, so
// lookups need no locking of their own.
type nnIndex struct {
	graph *hnsw.Graph[string]
}

// buildIndex constructs an index from a published snapshot.
func buildIndex(entries []Identity) *nnIndex {
	if len(entries) == 0 {
		return nil
	}

	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	for i := range entries {
		g.Add(hnsw.MakeNode(entries[i].ID, entries[i].Embedding))
	}
	return &nnIndex{graph: g}
}

// search returns the ids of the approximate k nearest entries. Distances are
// not reported; the matcher recomputes them exactly.
func (x *nnIndex) search(query []float32, k int) []string {
	neighbors := x.graph.Search(query, k)
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	return ids
}
