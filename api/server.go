package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teatak/postag/logger"
	"github.com/teatak/postag/metrics"
	"github.com/teatak/postag/store"
	"github.com/teatak/postag/tagger"
	"github.com/teatak/postag/tagset"
	"github.com/teatak/postag/util"
	"github.com/teatak/postag/version"
	"github.com/teatak/postag/viterbi"
)

// PredictionLog persists tagging results.
type PredictionLog interface {
	Record(ctx context.Context, p store.Prediction) (*store.Prediction, error)
	Get(ctx context.Context, id string) (*store.Prediction, error)
	List(ctx context.Context, limit, offset int) ([]store.Prediction, error)
}

// Loader builds a fresh tagger, typically by re-reading the model file.
type Loader func() (*tagger.Tagger, error)

// Options configures a Server. Zero limits fall back to defaults.
type Options struct {
	MaxTokens int
	MaxBatch  int
	Workers   int
	Log       PredictionLog
	Reload    Loader
	Logger    *zap.Logger
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the tagging API. The active tagger can be swapped at runtime.
type Server struct {
	mu     sync.RWMutex
	tagger *tagger.Tagger

	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// New creates an HTTP API server.
func New(t *tagger.Tagger, opts Options) *Server {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{tagger: t, opts: opts, logger: l}
	s.errorHandlers = []errorHandler{
		sentinelHandler(tagset.ErrUnknownTag, http.StatusBadRequest, "unknown_tag"),
		sentinelHandler(viterbi.ErrEmptySequence, http.StatusBadRequest, "empty_sequence"),
		sentinelHandler(viterbi.ErrMalformedInput, http.StatusBadRequest, "malformed_input"),
		sentinelHandler(viterbi.ErrInfeasible, http.StatusUnprocessableEntity, "infeasible"),
		sentinelHandler(context.Canceled, http.StatusServiceUnavailable, "canceled"),
		sentinelHandler(store.ErrNotFound, http.StatusNotFound, "not_found"),
	}
	return s
}

// Handler returns the router with middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Post("/tag", s.tag)
		r.Post("/tag/batch", s.tagBatch)
		r.Get("/tags", s.tags)
		r.Get("/predictions", s.predictions)
		r.Get("/predictions/{id}", s.prediction)
		r.Post("/reload", s.reload)
	})
	return r
}

func (s *Server) current() *tagger.Tagger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tagger
}

// Swap replaces the active tagger.
func (s *Server) Swap(t *tagger.Tagger) {
	s.mu.Lock()
	s.tagger = t
	s.mu.Unlock()
}

// TagRequest carries either pre-split tokens or raw text.
type TagRequest struct {
	Tokens []string `json:"tokens,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// TagResponse is the tagging of one sentence.
type TagResponse struct {
	ID       string   `json:"id,omitempty"`
	Tokens   []string `json:"tokens"`
	Tags     []string `json:"tags"`
	Score    *float64 `json:"score"`
	Fallback bool     `json:"fallback"`
	Unknown  []int    `json:"unknown,omitempty"` // positions of out-of-vocabulary tokens
}

// BatchRequest carries independent pre-split sentences.
type BatchRequest struct {
	Sentences [][]string `json:"sentences"`
}

// BatchResponse holds results in request order.
type BatchResponse struct {
	Results []TagResponse `json:"results"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) tag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	tokens := req.Tokens
	if len(tokens) == 0 && req.Text != "" {
		tokens = util.Tokenize(req.Text)
	}
	if len(tokens) > s.opts.MaxTokens {
		writeError(w, http.StatusBadRequest, "too_many_tokens",
			fmt.Sprintf("sentence has %d tokens, limit is %d", len(tokens), s.opts.MaxTokens))
		return
	}

	t := s.current()
	p, err := t.TagScored(tokens)
	if err != nil {
		s.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.record(r.Context(), t, p))
}

func (s *Server) tagBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Sentences) > s.opts.MaxBatch {
		writeError(w, http.StatusBadRequest, "batch_too_large",
			fmt.Sprintf("batch has %d sentences, limit is %d", len(req.Sentences), s.opts.MaxBatch))
		return
	}
	for i, tokens := range req.Sentences {
		if len(tokens) > s.opts.MaxTokens {
			writeError(w, http.StatusBadRequest, "too_many_tokens",
				fmt.Sprintf("sentence %d has %d tokens, limit is %d", i, len(tokens), s.opts.MaxTokens))
			return
		}
	}

	t := s.current()
	preds, err := t.TagBatch(r.Context(), req.Sentences, s.opts.Workers)
	if err != nil {
		s.handleError(w, err)
		return
	}

	resp := BatchResponse{Results: make([]TagResponse, len(preds))}
	for i, p := range preds {
		resp.Results[i] = s.record(r.Context(), t, p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// record logs p when a prediction log is configured. Logging failures do
// not fail the request.
func (s *Server) record(ctx context.Context, t *tagger.Tagger, p tagger.Prediction) TagResponse {
	resp := TagResponse{Tokens: p.Tokens, Tags: p.Tags, Fallback: p.Fallback}
	for i, tok := range p.Tokens {
		if !t.Model().Known(tok) {
			resp.Unknown = append(resp.Unknown, i)
		}
	}
	if resp.Tokens == nil {
		resp.Tokens = []string{}
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if !math.IsInf(p.Score, 0) {
		score := p.Score
		resp.Score = &score
	}
	if s.opts.Log == nil {
		return resp
	}

	rec, err := s.opts.Log.Record(ctx, store.Prediction{
		Tokens:   resp.Tokens,
		Tags:     resp.Tags,
		Score:    resp.Score,
		Fallback: resp.Fallback,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("failed to record prediction", zap.Error(err))
		return resp
	}
	resp.ID = rec.ID
	return resp
}

// TagInfo describes one entry of the tag inventory.
type TagInfo struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

func (s *Server) tags(w http.ResponseWriter, _ *http.Request) {
	ts := s.current().Model().Tags
	labels := ts.Labels()
	items := make([]TagInfo, len(labels))
	for i, l := range labels {
		items[i] = TagInfo{Index: i, Label: l}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tags":  items,
		"start": ts.Start(),
		"end":   ts.End(),
	})
}

func (s *Server) predictions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Log == nil {
		writeError(w, http.StatusNotFound, "prediction_log_disabled", "prediction log is not configured")
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil || limit <= 0 || limit > 100 {
		writeError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 100")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "offset must be non-negative")
		return
	}

	items, err := s.opts.Log.List(r.Context(), limit, offset)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if items == nil {
		items = []store.Prediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) prediction(w http.ResponseWriter, r *http.Request) {
	if s.opts.Log == nil {
		writeError(w, http.StatusNotFound, "prediction_log_disabled", "prediction log is not configured")
		return
	}

	p, err := s.opts.Log.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if s.opts.Reload == nil {
		writeError(w, http.StatusNotImplemented, "not_implemented", "reload is not configured")
		return
	}

	t, err := s.opts.Reload()
	if err != nil {
		logger.FromContext(r.Context()).Error("reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reload_failed", err.Error())
		return
	}
	s.Swap(t)

	m := t.Model()
	logger.FromContext(r.Context()).Info("model reloaded",
		zap.Int("tags", len(m.Tags.Labels())),
		zap.Int("vocabulary", len(m.Vocabulary())),
	)
	writeJSON(w, http.StatusOK, map[string]int{
		"tags":       len(m.Tags.Labels()),
		"vocabulary": len(m.Vocabulary()),
	})
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func sentinelHandler(target error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, target) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
