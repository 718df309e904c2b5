package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
	"github.com/alanyoungcy/pumpfight/internal/service"
)

// TokenHandler serves token creation, curve reads and trading.
type TokenHandler struct {
	svc    Launchpad
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(svc Launchpad, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{svc: svc, logger: logHandler(logger, "token")}
}

// Create launches a token for the caller.
// POST /api/tokens
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var args service.CreateTokenArgs
	if !decodeBody(w, r, &args) {
		return
	}
	execute(w, r, h.svc, h.logger, domain.CmdCreateToken, common.Address{}, args, http.StatusCreated)
}

// List returns every token, or those of one creator.
// GET /api/tokens?creator=0x...
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	var creator *common.Address
	if raw := r.URL.Query().Get("creator"); raw != "" {
		addr, ok := parseAddress(w, "creator", raw)
		if !ok {
			return
		}
		creator = &addr
	}

	infos := h.svc.Tokens(creator)
	out := make([]tokenView, 0, len(infos))
	for _, info := range infos {
		out = append(out, newTokenView(info))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

// Get returns a token's registry entry.
// GET /api/tokens/{token}
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	info, err := h.svc.TokenInfo(addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get token", err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(info))
}

// State returns the bonding curve state.
// GET /api/tokens/{token}/state
func (h *TokenHandler) State(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	st, err := h.svc.State(addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "state", err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(st))
}

// QuoteBuy returns the tokens a gross CHZ payment would buy. fees=false
// prices the payment on the bare curve.
// GET /api/tokens/{token}/quote/buy?payment=&fees=
func (h *TokenHandler) QuoteBuy(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	payment, ok := amountQuery(w, r, "payment")
	if !ok {
		return
	}
	fees := feesQuery(r)
	tokens, err := h.svc.QuoteBuy(addr, payment, fees)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote buy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"payment":    fixed.Format(payment),
		"tokens_out": fixed.Format(tokens),
		"fees":       strconv.FormatBool(fees),
	})
}

// QuoteCost returns the gross CHZ needed to buy a token amount. fees=false
// returns the bare curve cost.
// GET /api/tokens/{token}/quote/cost?tokens=&fees=
func (h *TokenHandler) QuoteCost(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	tokens, ok := amountQuery(w, r, "tokens")
	if !ok {
		return
	}
	fees := feesQuery(r)
	cost, err := h.svc.QuoteCost(addr, tokens, fees)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote cost", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"tokens": fixed.Format(tokens),
		"cost":   fixed.Format(cost),
		"fees":   strconv.FormatBool(fees),
	})
}

// QuoteSell returns the CHZ a sale of tokens would pay out.
// GET /api/tokens/{token}/quote/sell?tokens=
func (h *TokenHandler) QuoteSell(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	tokens, ok := amountQuery(w, r, "tokens")
	if !ok {
		return
	}
	payment, err := h.svc.QuoteSell(addr, tokens)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote sell", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"tokens":  fixed.Format(tokens),
		"payment": fixed.Format(payment),
	})
}

// Balance returns a holder's balance.
// GET /api/tokens/{token}/balances/{addr}
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	holder, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	bal, err := h.svc.Balance(addr, holder)
	if err != nil {
		writeServiceError(w, r, h.logger, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"holder":  holder.Hex(),
		"balance": fixed.Format(bal),
	})
}

// Buy spends CHZ on the curve.
// POST /api/tokens/{token}/buy
func (h *TokenHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var args service.BuyArgs
	h.write(w, r, domain.CmdBuy, &args)
}

// Sell returns tokens to the curve.
// POST /api/tokens/{token}/sell
func (h *TokenHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var args service.SellArgs
	h.write(w, r, domain.CmdSell, &args)
}

// Pause halts trading. Operator only.
// POST /api/tokens/{token}/pause
func (h *TokenHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, domain.CmdPause, &struct{}{})
}

// Unpause resumes trading. Operator only.
// POST /api/tokens/{token}/unpause
func (h *TokenHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, domain.CmdUnpause, &struct{}{})
}

// Graduate ends the curve. Operator only.
// POST /api/tokens/{token}/graduate
func (h *TokenHandler) Graduate(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, domain.CmdGraduate, &struct{}{})
}

func (h *TokenHandler) write(w http.ResponseWriter, r *http.Request, kind domain.CommandKind, args any) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	if !decodeBody(w, r, args) {
		return
	}
	execute(w, r, h.svc, h.logger, kind, addr, args, http.StatusOK)
}

// feesQuery reads the fees flag of the quote routes. Quotes include fees
// unless fees=false.
func feesQuery(r *http.Request) bool {
	return r.URL.Query().Get("fees") != "false"
}
