package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
	"github.com/alanyoungcy/pumpfight/internal/server/middleware"
)

// HeaderIdempotencyKey deduplicates retried writes.
const HeaderIdempotencyKey = "Idempotency-Key"

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response with a stable code.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// errorMapping pairs a domain error with its HTTP status and response code.
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrPollNotFound, http.StatusNotFound, "poll_not_found"},
	{domain.ErrPredictionNotFound, http.StatusNotFound, "prediction_not_found"},

	{domain.ErrUnauthorized, http.StatusForbidden, "unauthorized"},

	{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domain.ErrInvalidConfig, http.StatusBadRequest, "invalid_config"},
	{domain.ErrInvalidOption, http.StatusBadRequest, "invalid_option"},

	{domain.ErrInsufficientPayment, http.StatusUnprocessableEntity, "insufficient_payment"},
	{domain.ErrSlippageExceeded, http.StatusUnprocessableEntity, "slippage_exceeded"},
	{domain.ErrSupplyCapExceeded, http.StatusUnprocessableEntity, "supply_cap_exceeded"},
	{domain.ErrInsufficientReserve, http.StatusUnprocessableEntity, "insufficient_reserve"},
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{domain.ErrInsufficientStake, http.StatusUnprocessableEntity, "insufficient_stake"},
	{domain.ErrInsufficientStakeForPoll, http.StatusUnprocessableEntity, "insufficient_stake_for_poll"},
	{domain.ErrMaxSellPercentageExceeded, http.StatusUnprocessableEntity, "max_sell_percentage_exceeded"},
	{domain.ErrNoVotingPower, http.StatusUnprocessableEntity, "no_voting_power"},

	{domain.ErrCurvePaused, http.StatusConflict, "curve_paused"},
	{domain.ErrCurveGraduated, http.StatusConflict, "curve_graduated"},
	{domain.ErrSellCooldownActive, http.StatusConflict, "sell_cooldown_active"},
	{domain.ErrPollNotActive, http.StatusConflict, "poll_not_active"},
	{domain.ErrPollExpired, http.StatusConflict, "poll_expired"},
	{domain.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{domain.ErrPredictionNotEnded, http.StatusConflict, "prediction_not_ended"},
	{domain.ErrPredictionResolved, http.StatusConflict, "prediction_resolved"},
	{domain.ErrPredictionClosed, http.StatusConflict, "prediction_closed"},
	{domain.ErrReentrantCall, http.StatusConflict, "reentrant_call"},
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},

	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{domain.ErrLockHeld, http.StatusServiceUnavailable, "busy"},
}

// writeServiceError maps err to a status code. Unknown errors are logged and
// reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal", op+" failed")
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// addressParam reads a hex address from the named path parameter.
func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	return parseAddress(w, name, r.PathValue(name))
}

func parseAddress(w http.ResponseWriter, name, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid address in "+name)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// uintParam reads an unsigned integer path parameter.
func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	n, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid "+name)
		return 0, false
	}
	return n, true
}

// amountQuery reads a required decimal amount from the query string.
func amountQuery(w http.ResponseWriter, r *http.Request, name string) (*big.Int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	v, err := fixed.Parse(raw)
	if raw == "" || err != nil || v.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid_amount", name+" must be a non-negative decimal amount")
		return nil, false
	}
	return v, true
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// execute runs a write on behalf of the authenticated caller and renders its
// receipt.
func execute(
	w http.ResponseWriter,
	r *http.Request,
	svc Launchpad,
	logger *slog.Logger,
	kind domain.CommandKind,
	tokenAddr common.Address,
	args any,
	status int,
) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "caller required")
		return
	}
	receipt, err := svc.Execute(r.Context(), kind, tokenAddr, caller, args, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		writeServiceError(w, r, logger, string(kind), err)
		return
	}
	writeJSON(w, status, newReceiptView(receipt))
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
