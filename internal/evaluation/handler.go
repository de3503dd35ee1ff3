package evaluation

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aiengineer/rageval/internal/judgments"
	"github.com/aiengineer/rageval/internal/pkg/errors"
)

// maxBodyBytes bounds request bodies for evaluation endpoints.
const maxBodyBytes = 8 << 20

// Handler provides HTTP handlers for evaluation.
type Handler struct {
	evaluator *Evaluator
}

// NewHandler creates a new evaluation handler.
func NewHandler(e *Evaluator) *Handler {
	return &Handler{evaluator: e}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/prf1", h.handlePRF1)
	mux.HandleFunc("POST /v1/evaluation/recall", h.handleRecall)
	mux.HandleFunc("POST /v1/evaluation/batch-recall", h.handleBatchRecall)
	mux.HandleFunc("POST /v1/evaluation/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluation/judgments", h.handleAddJudgments)
	mux.HandleFunc("GET /v1/evaluation/judgments/{query_id}", h.handleGetJudgments)
	mux.HandleFunc("DELETE /v1/evaluation/judgments/{query_id}", h.handleDeleteJudgments)
}

// PRF1Request carries confusion counts.
type PRF1Request struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// PRF1Response carries precision, recall and F1.
type PRF1Response struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// RecallRequest scores one ranked list. K defaults to the evaluator's DefaultK.
type RecallRequest struct {
	GroundTruth []string `json:"ground_truth"`
	Ranked      []string `json:"ranked"`
	K           *int     `json:"k,omitempty"`
}

// RecallResponse echoes k as requested, like RetrievalAtK.
type RecallResponse struct {
	Hits   int     `json:"hits"`
	K      int     `json:"k"`
	Recall float64 `json:"recall"`
}

// BatchRecallRequest pairs ground truths with ranked lists by index.
type BatchRecallRequest struct {
	GroundTruths [][]string `json:"ground_truths"`
	RankedLists  [][]string `json:"ranked_lists"`
	K            *int       `json:"k,omitempty"`
}

// BatchRecallResponse carries the mean recall@k.
type BatchRecallResponse struct {
	K          int     `json:"k"`
	Queries    int     `json:"queries"`
	MeanRecall float64 `json:"mean_recall"`
}

// JudgmentsResponse lists the relevant docs of one query.
type JudgmentsResponse struct {
	QueryID  string   `json:"query_id"`
	Relevant []string `json:"relevant"`
}

func (h *Handler) handlePRF1(w http.ResponseWriter, r *http.Request) {
	var req PRF1Request
	if !decode(w, r, &req) {
		return
	}
	if req.TP < 0 || req.FP < 0 || req.FN < 0 {
		errors.WriteError(w, errors.ValidationError("tp, fp and fn must be non-negative"))
		return
	}

	p, rc, f1 := PrecisionRecallF1(req.TP, req.FP, req.FN)
	writeJSON(w, http.StatusOK, PRF1Response{Precision: p, Recall: rc, F1: f1})
}

func (h *Handler) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req RecallRequest
	if !decode(w, r, &req) {
		return
	}
	k, err := h.resolveK(req.K)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	gt := NewGroundTruth(req.GroundTruth...)
	hits, kk := RetrievalAtK(gt, req.Ranked, k)
	writeJSON(w, http.StatusOK, RecallResponse{
		Hits:   hits,
		K:      kk,
		Recall: RecallAtK(gt, req.Ranked, k),
	})
}

func (h *Handler) handleBatchRecall(w http.ResponseWriter, r *http.Request) {
	var req BatchRecallRequest
	if !decode(w, r, &req) {
		return
	}
	k, err := h.resolveK(req.K)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	gts := make([]GroundTruth, len(req.GroundTruths))
	for i, ids := range req.GroundTruths {
		gts[i] = NewGroundTruth(ids...)
	}

	mean, err := BatchRecallAtK(gts, req.RankedLists, k)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchRecallResponse{K: k, Queries: len(gts), MeanRecall: mean})
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var run Run
	if !decode(w, r, &run) {
		return
	}

	report, err := h.evaluator.EvaluateRun(r.Context(), run)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleAddJudgments(w http.ResponseWriter, r *http.Request) {
	var js []judgments.Judgment
	if !decode(w, r, &js) {
		return
	}

	if err := h.evaluator.AddJudgments(r.Context(), js); err != nil {
		errors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetJudgments(w http.ResponseWriter, r *http.Request) {
	queryID := r.PathValue("query_id")
	store := h.evaluator.Judgments()
	if store == nil {
		errors.WriteError(w, errors.ServiceUnavailableError("judgments store"))
		return
	}

	ids, err := store.GroundTruth(r.Context(), queryID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if len(ids) == 0 {
		errors.WriteError(w, errors.NotFoundError(fmt.Sprintf("judgments for query %s", queryID)))
		return
	}
	writeJSON(w, http.StatusOK, JudgmentsResponse{QueryID: queryID, Relevant: ids})
}

func (h *Handler) handleDeleteJudgments(w http.ResponseWriter, r *http.Request) {
	store := h.evaluator.Judgments()
	if store == nil {
		errors.WriteError(w, errors.ServiceUnavailableError("judgments store"))
		return
	}

	if err := store.Delete(r.Context(), r.PathValue("query_id")); err != nil {
		errors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolveK(k *int) (int, error) {
	if k == nil {
		return h.evaluator.DefaultK(), nil
	}
	if *k < 1 {
		return 0, errors.ValidationError(fmt.Sprintf("k must be positive, got %d", *k))
	}
	return *k, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
