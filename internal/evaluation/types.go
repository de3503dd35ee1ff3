package evaluation

import (
	"encoding/json"
	"sort"
)

// GroundTruth is the set of document IDs judged relevant for one query.
type GroundTruth map[string]struct{}

// NewGroundTruth builds a GroundTruth from IDs, dropping duplicates.
func NewGroundTruth(ids ...string) GroundTruth {
	gt := make(GroundTruth, len(ids))
	for _, id := range ids {
		gt[id] = struct{}{}
	}
	return gt
}

// Contains reports whether id is relevant. A nil GroundTruth contains nothing.
func (g GroundTruth) Contains(id string) bool {
	_, ok := g[id]
	return ok
}

// Len returns the number of relevant IDs.
func (g GroundTruth) Len() int {
	return len(g)
}

// IDs returns the relevant IDs in sorted order.
func (g GroundTruth) IDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON encodes the set as a sorted array.
func (g GroundTruth) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.IDs())
}

// UnmarshalJSON decodes an array of IDs.
func (g *GroundTruth) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*g = NewGroundTruth(ids...)
	return nil
}

// QueryRun is the ranked output of a retrieval pipeline for one query.
type QueryRun struct {
	QueryID string   `json:"id" yaml:"id"`
	Query   string   `json:"query,omitempty" yaml:"query,omitempty"`
	Ranked  []string `json:"ranked" yaml:"ranked"`

	// Relevant, when non-nil, is used instead of stored judgments.
	Relevant []string `json:"relevant,omitempty" yaml:"relevant,omitempty"`
}

// Run is a named batch of query outputs scored together.
type Run struct {
	Name    string     `json:"name"`
	Ks      []int      `json:"ks,omitempty"`
	Queries []QueryRun `json:"queries"`
}

// QueryResult contains metrics for a single query.
type QueryResult struct {
	QueryID     string          `json:"query_id"`
	Query       string          `json:"query,omitempty"`
	Relevant    int             `json:"relevant"`
	ResultCount int             `json:"result_count"`
	Hits        map[int]int     `json:"hits"`      // RetrievalAtK hits per k
	Recall      map[int]float64 `json:"recall"`    // Recall@K
	Precision   map[int]float64 `json:"precision"` // Precision@K
	NDCG        map[int]float64 `json:"ndcg"`      // NDCG@K
	RR          float64         `json:"rr"`
	AP          float64         `json:"ap"`
}

// Summary aggregates metrics across queries.
type Summary struct {
	QueryCount    int             `json:"query_count"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MRR           float64         `json:"mrr"`
	MAP           float64         `json:"map"`
}

// RunReport is the outcome of EvaluateRun.
type RunReport struct {
	Name    string         `json:"name"`
	Ks      []int          `json:"ks"`
	Results []*QueryResult `json:"results"`
	Summary *Summary       `json:"summary"`
}
