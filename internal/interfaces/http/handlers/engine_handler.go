package handlers

import (
	"fmt"
	"net/http"

	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FCE-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FCE-Intelligence/pkg/errors"
	"github.com/turtacn/FCE-Intelligence/pkg/fce"
)

// EngineConfig tunes how request batches are fed to the engine.
type EngineConfig struct {
	// Workers bounds the goroutines used per batch; <= 0 means GOMAXPROCS.
	Workers int
	// MaxBatchSize rejects larger batches with 413; 0 disables the check.
	MaxBatchSize int
	MaxBodySize  int64
}

// EngineHandler serves classification, grouping and norm inference
// straight from pkg/fce.
type EngineHandler struct {
	cfg     EngineConfig
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

func NewEngineHandler(cfg EngineConfig, metrics *prometheus.AppMetrics, logger logging.Logger) *EngineHandler {
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EngineHandler{cfg: cfg, metrics: metrics, logger: logger.Named("engine")}
}

// ClassifyRequest is either a single record or, when Records is present, a
// batch.
type ClassifyRequest struct {
	fce.TestRecord
	Records []fce.TestRecord `json:"records,omitempty"`
}

// Classification is the answer for one record.
type Classification struct {
	TestID   string      `json:"testId"`
	TestName string      `json:"testName"`
	Section  fce.Section `json:"section"`
	RuleID   string      `json:"ruleId"`
}

type ClassifyBatchResponse struct {
	Results []Classification `json:"results"`
}

// Classify handles POST /api/v1/classify.
func (h *EngineHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodySize, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	if req.Records == nil {
		d := fce.Explain(req.TestRecord)
		h.metrics.RecordClassification(d.Section.String(), d.RuleID)
		writeJSON(w, http.StatusOK, classification(req.TestRecord, d))
		return
	}

	if err := h.checkBatch(len(req.Records)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	decisions, err := fce.ExplainAll(r.Context(), req.Records, h.cfg.Workers)
	if err != nil {
		writeAppError(w, h.logger, errors.Wrap(err, errors.ErrCodeBatchCancelled, "classification cancelled"))
		return
	}

	resp := ClassifyBatchResponse{Results: make([]Classification, len(decisions))}
	for i, d := range decisions {
		h.metrics.RecordClassification(d.Section.String(), d.RuleID)
		resp.Results[i] = classification(req.Records[i], d)
	}
	writeJSON(w, http.StatusOK, resp)
}

func classification(rec fce.TestRecord, d fce.Decision) Classification {
	return Classification{TestID: rec.TestID, TestName: rec.TestName, Section: d.Section, RuleID: d.RuleID}
}

type GroupRequest struct {
	Records []fce.TestRecord `json:"records"`
}

type GroupResponse struct {
	Groups []fce.Group[fce.TestRecord] `json:"groups"`
}

// Group handles POST /api/v1/group. The response always lists the five
// sections in display order.
func (h *EngineHandler) Group(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodySize, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.checkSize(len(req.Records)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	groups := fce.GroupBySection(req.Records)
	writeJSON(w, http.StatusOK, GroupResponse{Groups: groups})
}

// NormResult pairs a test name with its inferred norms.
type NormResult struct {
	Name  string       `json:"name"`
	Norms fce.NormInfo `json:"norms"`
}

// InferNorms handles GET /api/v1/norms?name=. An empty name is a valid
// input; a missing parameter is not.
func (h *EngineHandler) InferNorms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("name") {
		writeAppError(w, h.logger, errors.InvalidParam("query parameter name is required"))
		return
	}
	name := q.Get("name")
	info := fce.InferNorms(name)
	h.metrics.RecordNormInference(string(info.Category))
	writeJSON(w, http.StatusOK, NormResult{Name: name, Norms: info})
}

type NormsBatchRequest struct {
	Names []string `json:"names"`
}

type NormsBatchResponse struct {
	Results []NormResult `json:"results"`
}

// InferNormsBatch handles POST /api/v1/norms.
func (h *EngineHandler) InferNormsBatch(w http.ResponseWriter, r *http.Request) {
	var req NormsBatchRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodySize, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.checkBatch(len(req.Names)); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	infos, err := fce.InferAll(r.Context(), req.Names, h.cfg.Workers)
	if err != nil {
		writeAppError(w, h.logger, errors.Wrap(err, errors.ErrCodeBatchCancelled, "norm inference cancelled"))
		return
	}
	resp := NormsBatchResponse{Results: make([]NormResult, len(infos))}
	for i, info := range infos {
		h.metrics.RecordNormInference(string(info.Category))
		resp.Results[i] = NormResult{Name: req.Names[i], Norms: info}
	}
	writeJSON(w, http.StatusOK, resp)
}

type SectionInfo struct {
	Order int    `json:"order"`
	Label string `json:"label"`
}

// Sections handles GET /api/v1/sections.
func (h *EngineHandler) Sections(w http.ResponseWriter, r *http.Request) {
	all := fce.Sections()
	out := make([]SectionInfo, len(all))
	for i, s := range all {
		out[i] = SectionInfo{Order: i, Label: s.String()}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sections": out})
}

type RuleInfo struct {
	Order       int    `json:"order"`
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Rules handles GET /api/v1/rules, the classification table in evaluation
// order.
func (h *EngineHandler) Rules(w http.ResponseWriter, r *http.Request) {
	rules := fce.Rules()
	out := make([]RuleInfo, len(rules))
	for i, rule := range rules {
		out[i] = RuleInfo{Order: i + 1, ID: rule.ID, Description: rule.Description}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": out})
}

// checkBatch rejects empty and oversized batches.
func (h *EngineHandler) checkBatch(n int) error {
	if n == 0 {
		return errors.New(errors.ErrCodeEmptyBatch, "batch must not be empty")
	}
	return h.checkSize(n)
}

func (h *EngineHandler) checkSize(n int) error {
	if h.cfg.MaxBatchSize > 0 && n > h.cfg.MaxBatchSize {
		return errors.New(errors.ErrCodeBatchTooLarge, "batch too large").
			WithDetail(fmt.Sprintf("size=%d max=%d", n, h.cfg.MaxBatchSize))
	}
	return nil
}
