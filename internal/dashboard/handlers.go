package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"BandWatch/internal/calculator"
	"BandWatch/internal/collector"
	"BandWatch/internal/model"
	"BandWatch/internal/recorder"
	"BandWatch/internal/session"
	"BandWatch/internal/strategy"
)

const (
	msgFetchFirst    = "fetch data for a pair first"
	msgNotEnoughData = "not enough data to compute bands"
	maxQueryLimit    = 500
	maxBodyBytes     = 1 << 16
)

type fetchRequest struct {
	Pair       string   `json:"pair"`
	Mode       string   `json:"mode"`
	Interval   int      `json:"interval"`
	Lookback   string   `json:"lookback"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Window     *int     `json:"window"`
	Multiplier *float64 `json:"multiplier"`
}

type paramsRequest struct {
	Window     *int     `json:"window"`
	Multiplier *float64 `json:"multiplier"`
}

type paramsResponse struct {
	SessionID string              `json:"session_id"`
	Params    model.BandParams    `json:"params"`
	Summary   model.SignalSummary `json:"summary"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"source": s.collector.Fetcher.Name(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.listPairs(r.Context())
	if err != nil {
		writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": pairs, "count": len(pairs)})
}

func (s *Server) listPairs(ctx context.Context) ([]string, error) {
	s.pairsMu.Lock()
	defer s.pairsMu.Unlock()

	if s.pairs != nil && time.Since(s.pairsFetched) < pairsCacheTTL {
		return s.pairs, nil
	}
	pairs, err := s.collector.Fetcher.ListPairs(ctx)
	if err != nil {
		return nil, err
	}
	s.pairs = pairs
	s.pairsFetched = time.Now()
	return pairs, nil
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	st, err := s.loadState(r)
	if errors.Is(err, session.ErrNotFound) {
		st = session.New()
		st.Params = s.opts.Params
	} else if err != nil {
		log.Error().Err(err).Msg("load session")
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	params := applyParams(st.Params, req.Window, req.Multiplier)
	if err := calculator.ValidateParams(params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spec := collector.RangeSpec{
		Mode:     collector.Mode(strings.ToLower(req.Mode)),
		Interval: req.Interval,
		Lookback: req.Lookback,
		From:     req.From,
		To:       req.To,
	}
	series, err := s.fetch(r.Context(), req.Pair, spec)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	st.Fetch(series, spec)
	_, derr := s.derive(st, params)
	if derr != nil && !errors.Is(derr, strategy.ErrNotEnoughData) {
		log.Error().Err(derr).Msg("derive bands")
		writeError(w, http.StatusInternalServerError, "band computation failed")
		return
	}
	if !s.saveState(w, r.Context(), st) {
		return
	}

	view := buildPriceView(st)
	if derr != nil {
		view.Warning = msgNotEnoughData
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, ok := s.requireSeries(w, r)
	if !ok {
		return
	}

	params := applyParams(st.Params, req.Window, req.Multiplier)
	if err := calculator.ValidateParams(params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.derive(st, params)
	if err != nil && !errors.Is(err, strategy.ErrNotEnoughData) {
		log.Error().Err(err).Msg("derive bands")
		writeError(w, http.StatusInternalServerError, "band computation failed")
		return
	}
	if !s.saveState(w, r.Context(), st) {
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, msgNotEnoughData)
		return
	}
	writeJSON(w, http.StatusOK, paramsResponse{SessionID: st.ID, Params: a.Params, Summary: a.Summary})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	st, ok := s.requireSeries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildPriceView(st))
}

func (s *Server) handleBands(w http.ResponseWriter, r *http.Request) {
	st, a, ok := s.requireAnalysis(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildBandsView(st.Pair, a))
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	st, a, ok := s.requireAnalysis(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildSignalsView(st.Pair, a))
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	st, ok := s.requireSeries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildCandlesView(st.Series))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("pair")))
	events, err := s.recorder.RecentSignals(pair, parseLimit(r, 20))
	if err != nil {
		log.Error().Err(err).Msg("load signal history")
		writeError(w, http.StatusInternalServerError, "failed to load signal history")
		return
	}
	if events == nil {
		events = []recorder.SignalEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": events, "count": len(events)})
}

// --- session helpers ---

func (s *Server) loadState(r *http.Request) (*session.State, error) {
	id := session.IDFromRequest(r)
	if id == "" {
		return nil, session.ErrNotFound
	}
	return s.sessions.Get(r.Context(), id)
}

// requireSeries writes 409 when nothing has been fetched in this session.
func (s *Server) requireSeries(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	st, err := s.loadState(r)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Error().Err(err).Msg("load session")
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return nil, false
	}
	if st == nil || st.Series == nil {
		writeError(w, http.StatusConflict, msgFetchFirst)
		return nil, false
	}
	return st, true
}

// requireAnalysis also writes 422 when the series is too short for the band window.
func (s *Server) requireAnalysis(w http.ResponseWriter, r *http.Request) (*session.State, *model.Analysis, bool) {
	st, ok := s.requireSeries(w, r)
	if !ok {
		return nil, nil, false
	}
	if st.Analysis != nil {
		return st, st.Analysis, true
	}

	a, err := s.derive(st, st.Params)
	if err != nil {
		if errors.Is(err, strategy.ErrNotEnoughData) {
			writeError(w, http.StatusUnprocessableEntity, msgNotEnoughData)
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return nil, nil, false
	}
	if !s.saveState(w, r.Context(), st) {
		return nil, nil, false
	}
	return st, a, true
}

func (s *Server) saveState(w http.ResponseWriter, ctx context.Context, st *session.State) bool {
	if err := s.sessions.Put(ctx, st); err != nil {
		log.Error().Err(err).Str("session", st.ID).Msg("save session")
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return false
	}
	session.SetCookie(w, st.ID, s.opts.SessionTTL)
	if counter, ok := s.sessions.(interface{ Len() int }); ok {
		s.metrics.SetSessions(counter.Len())
	}
	return true
}

// --- domain helpers ---

func (s *Server) fetch(ctx context.Context, pair string, spec collector.RangeSpec) (*model.PriceSeries, error) {
	start := time.Now()
	series, err := s.collector.Fetch(ctx, strings.ToUpper(pair), spec)
	elapsed := time.Since(start)

	outcome := "ok"
	var fe *collector.FetchError
	if errors.As(err, &fe) {
		outcome = string(fe.Reason)
	}
	s.metrics.ObserveFetch(outcome, elapsed)

	run := &recorder.FetchRun{
		Pair:     strings.ToUpper(pair),
		Source:   s.collector.Fetcher.Name(),
		Mode:     string(spec.Mode),
		Interval: spec.Interval,
		Outcome:  outcome,
		Duration: elapsed,
	}
	if series != nil {
		run.Interval = series.Interval
		run.Bars = series.Len()
	}
	if rerr := s.recorder.RecordFetch(run); rerr != nil {
		log.Error().Err(rerr).Msg("record fetch")
	}
	return series, err
}

func (s *Server) derive(st *session.State, params model.BandParams) (*model.Analysis, error) {
	start := time.Now()
	a, err := st.Derive(params)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCompute(time.Since(start), a.Summary.Buys, a.Summary.Sells, a.Summary.Holds)
	return a, nil
}

func applyParams(p model.BandParams, window *int, multiplier *float64) model.BandParams {
	if window != nil {
		p.Window = *window
	}
	if multiplier != nil {
		p.Multiplier = *multiplier
	}
	return p
}

// --- request/response helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFetchError maps a rejected request to 400 and any exchange failure to 502.
func writeFetchError(w http.ResponseWriter, err error) {
	var fe *collector.FetchError
	if !errors.As(err, &fe) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error(), "reason": string(collector.ReasonNetwork)})
		return
	}
	if fe.Reason == collector.ReasonInvalidRequest {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fe.Err.Error(), "reason": string(fe.Reason)})
		return
	}
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": fe.Error(), "reason": string(fe.Reason)})
}
