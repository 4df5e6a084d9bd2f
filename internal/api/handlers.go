package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/apperr"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/model"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/simulation"
	"github.com/Corps-Lab/CRMDIAMANTE-sub000/internal/store"
)

var birthDateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

// simulationRequest accepts the birth date as a plain date string.
type simulationRequest struct {
	model.SimulationParameters
	BirthDate string `json:"birth_date"`
	// Remote defaults to true. Set it to false for a local-only simulation.
	Remote *bool `json:"remote,omitempty"`
}

type errorBody struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

type reconciliation struct {
	Status   model.ValidationStatus `json:"status"`
	Delta    *float64               `json:"delta,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
}

type simulationResponse struct {
	Local          model.LocalSimulationResult `json:"local"`
	Quote          *model.AuthoritativeQuote   `json:"quote,omitempty"`
	Reconciliation reconciliation              `json:"reconciliation"`
	QuoteError     *errorBody                  `json:"quote_error,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"remote_breaker": h.svc.BreakerState().String(),
	})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.metrics.Collect(r.Context(), max(h.lookback, 1))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSimulation(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	withQuote := req.Remote == nil || *req.Remote

	out, err := h.svc.Simulate(r.Context(), req.SimulationParameters, withQuote)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(out))
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSimulation(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.svc.Schedule(req.SimulationParameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) cities(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Cities(r.Context(), chi.URLParam(r, "uf"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) saveSimulation(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSimulation(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, _, err := h.svc.Save(r.Context(), req.SimulationParameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) getSimulation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) listSimulations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{StateCode: q.Get("uf")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, apperr.New(apperr.KindInvalidParameter, "limit must be a non-negative integer"))
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, apperr.New(apperr.KindInvalidParameter, "offset must be a non-negative integer"))
		return
	}

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func decodeSimulation(w http.ResponseWriter, r *http.Request) (*simulationRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidParameter, err, "request body too large or unreadable")
	}
	var req simulationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidParameter, err, "invalid request body")
	}
	if req.BirthDate != "" {
		bd, err := parseBirthDate(req.BirthDate)
		if err != nil {
			return nil, err
		}
		req.SimulationParameters.BirthDate = bd
	}
	req.StateCode = strings.ToUpper(strings.TrimSpace(req.StateCode))
	return &req, nil
}

func parseBirthDate(s string) (time.Time, error) {
	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.New(apperr.KindInvalidParameter, "birth_date must be YYYY-MM-DD or DD/MM/YYYY")
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, eris.New("api: negative integer")
	}
	return n, nil
}

func toResponse(out *simulation.Outcome) simulationResponse {
	resp := simulationResponse{
		Local: out.Reconciled.Local,
		Quote: out.Reconciled.Quote,
		Reconciliation: reconciliation{
			Status:   out.Reconciled.Status,
			Delta:    out.Reconciled.Delta,
			Warnings: out.Reconciled.Warnings,
		},
	}
	if out.QuoteErr != nil {
		resp.QuoteError = &errorBody{
			Error: apperr.Message(out.QuoteErr),
			Kind:  apperr.KindOf(out.QuoteErr),
		}
	}
	return resp
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidParameter:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindNotReconciled, apperr.KindNoEligibleProduct, apperr.KindNoQuoteReturned, apperr.KindInvalidQuote:
		return http.StatusUnprocessableEntity
	case apperr.KindRemoteBlocked:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindNetwork, apperr.KindDecode:
		return http.StatusBadGateway
	case apperr.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: apperr.Message(err), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
		http.Error(w, `{"error":"internal error","kind":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck
}
