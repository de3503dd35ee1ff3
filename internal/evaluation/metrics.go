package evaluation

import (
	"math"

	"github.com/aiengineer/rageval/internal/pkg/errors"
)

// DefaultK is the cutoff used when a caller does not choose one.
const DefaultK = 5

// ErrLengthMismatch is matched (via errors.Is) by the error BatchRecallAtK
// returns when its two inputs are not paired one-to-one.
var ErrLengthMismatch = errors.New(errors.CodeLengthMismatch, "batch inputs differ in length")

// PrecisionRecallF1 computes precision, recall and F1 from confusion counts.
// A zero denominator yields 0 for that metric instead of an error, and F1 is
// 0 whenever precision and recall are both 0. Denominators are summed in
// float64 so counts near math.MaxInt cannot overflow.
func PrecisionRecallF1(tp, fp, fn int) (precision, recall, f1 float64) {
	if d := float64(tp) + float64(fp); d > 0 {
		precision = float64(tp) / d
	}
	if d := float64(tp) + float64(fn); d > 0 {
		recall = float64(tp) / d
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// RetrievalAtK counts how many of the first k ranked IDs are in groundTruth.
//
// The returned k is the k that was passed in, not the number of items that
// were actually inspected: RetrievalAtK(gt, []string{"a"}, 10) reports k=10.
// Callers that need the effective cutoff should use min(k, len(ranked)).
func RetrievalAtK(groundTruth GroundTruth, ranked []string, k int) (hits, kk int) {
	for _, id := range topK(ranked, k) {
		if groundTruth.Contains(id) {
			hits++
		}
	}
	return hits, k
}

// RecallAtK is the share of groundTruth found in the first k ranked IDs.
// An empty groundTruth yields 0.
func RecallAtK(groundTruth GroundTruth, ranked []string, k int) float64 {
	if groundTruth.Len() == 0 {
		return 0
	}
	hits, _ := RetrievalAtK(groundTruth, ranked, k)
	return float64(hits) / float64(groundTruth.Len())
}

// BatchRecallAtK averages RecallAtK over paired queries. groundTruths[i] is
// scored against rankedLists[i]; unequal lengths return a LENGTH_MISMATCH
// error rather than a mean over the shorter input. An empty batch yields 0.
func BatchRecallAtK(groundTruths []GroundTruth, rankedLists [][]string, k int) (float64, error) {
	if len(groundTruths) != len(rankedLists) {
		return 0, errors.LengthMismatchError("ground_truths", "ranked_lists", len(groundTruths), len(rankedLists))
	}
	if len(groundTruths) == 0 {
		return 0, nil
	}

	sum := 0.0
	for i, gt := range groundTruths {
		sum += RecallAtK(gt, rankedLists[i], k)
	}
	return sum / float64(len(groundTruths)), nil
}

// PrecisionAtK is hits in the first k divided by k. Like RetrievalAtK it
// divides by the requested k even when fewer items were ranked.
func PrecisionAtK(groundTruth GroundTruth, ranked []string, k int) float64 {
	if k <= 0 {
		return 0
	}
	hits, _ := RetrievalAtK(groundTruth, ranked, k)
	return float64(hits) / float64(k)
}

// ReciprocalRank returns 1/rank of the first relevant ID, or 0.
func ReciprocalRank(groundTruth GroundTruth, ranked []string) float64 {
	for i, id := range ranked {
		if groundTruth.Contains(id) {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision averages precision at each rank holding a relevant ID,
// normalised by the size of groundTruth so unretrieved items count as misses.
func AveragePrecision(groundTruth GroundTruth, ranked []string) float64 {
	if groundTruth.Len() == 0 {
		return 0
	}

	hits := 0
	sum := 0.0
	seen := make(map[string]struct{}, len(ranked))
	for i, id := range ranked {
		if !groundTruth.Contains(id) {
			continue
		}
		// A duplicate relevant ID is not a second hit
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		hits++
		sum += float64(hits) / float64(i+1)
	}
	return sum / float64(groundTruth.Len())
}

// NDCGAtK computes normalised discounted cumulative gain at k with binary
// gains (1 for relevant, 0 otherwise).
func NDCGAtK(groundTruth GroundTruth, ranked []string, k int) float64 {
	top := topK(ranked, k)
	if len(top) == 0 || groundTruth.Len() == 0 {
		return 0
	}

	dcg := 0.0
	for i, id := range top {
		if groundTruth.Contains(id) {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}

	ideal := groundTruth.Len()
	if ideal > k {
		ideal = k
	}
	idcg := 0.0
	for i := 0; i < ideal; i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}

	if idcg == 0 {
		return 0
	}
	return math.Min(dcg/idcg, 1)
}

func topK(ranked []string, k int) []string {
	if k <= 0 {
		return nil
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}
