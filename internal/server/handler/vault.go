package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
	"github.com/alanyoungcy/pumpfight/internal/service"
)

// VaultHandler serves staking, polls and predictions of a token's vault.
type VaultHandler struct {
	svc    Launchpad
	logger *slog.Logger
}

// NewVaultHandler creates a VaultHandler.
func NewVaultHandler(svc Launchpad, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{svc: svc, logger: logHandler(logger, "vault")}
}

// GetStake returns a staker's position and current voting power.
// GET /api/tokens/{token}/stakes/{addr}
func (h *VaultHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	staker, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	st, err := h.svc.Stake(addr, staker)
	if err != nil {
		writeServiceError(w, r, h.logger, "get stake", err)
		return
	}
	writeJSON(w, http.StatusOK, newStakeView(st))
}

// Stake locks tokens in the vault.
// POST /api/tokens/{token}/stake
func (h *VaultHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var args service.StakeArgs
	h.write(w, r, domain.CmdStake, &args, http.StatusOK)
}

// Unstake releases staked tokens.
// POST /api/tokens/{token}/unstake
func (h *VaultHandler) Unstake(w http.ResponseWriter, r *http.Request) {
	var args service.StakeArgs
	h.write(w, r, domain.CmdUnstake, &args, http.StatusOK)
}

// CreateVote opens a poll. Creator only.
// POST /api/tokens/{token}/votes
func (h *VaultHandler) CreateVote(w http.ResponseWriter, r *http.Request) {
	var args service.CreateVoteArgs
	h.write(w, r, domain.CmdCreateVote, &args, http.StatusCreated)
}

// GetVote returns a poll.
// GET /api/tokens/{token}/votes/{id}
func (h *VaultHandler) GetVote(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.Vote(addr, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get vote", err)
		return
	}
	writeJSON(w, http.StatusOK, newPollView(p))
}

// GetVoteOption returns one option of a poll.
// GET /api/tokens/{token}/votes/{id}/options/{index}
func (h *VaultHandler) GetVoteOption(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	idx, ok := uintParam(w, r, "index")
	if !ok {
		return
	}
	opt, err := h.svc.VoteOption(addr, id, idx)
	if err != nil {
		writeServiceError(w, r, h.logger, "get vote option", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index":  idx,
		"label":  opt.Label,
		"weight": fixed.Format(opt.Weight),
	})
}

// HasVoted reports whether an address voted in a poll.
// GET /api/tokens/{token}/votes/{id}/voters/{addr}
func (h *VaultHandler) HasVoted(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	voter, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	voted, err := h.svc.HasVoted(addr, id, voter)
	if err != nil {
		writeServiceError(w, r, h.logger, "has voted", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voter": voter.Hex(), "has_voted": voted})
}

// CastVote votes in a poll with the caller's current voting power.
// POST /api/tokens/{token}/votes/{id}/cast
func (h *VaultHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Option uint64 `json:"option"`
	}
	args := service.CastVoteArgs{PollID: id}
	h.writeWith(w, r, domain.CmdCastVote, &body, func() any {
		args.Option = body.Option
		return args
	}, http.StatusOK)
}

// CloseVote ends a poll before its deadline. Creator only.
// POST /api/tokens/{token}/votes/{id}/close
func (h *VaultHandler) CloseVote(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var body struct{}
	h.writeWith(w, r, domain.CmdCloseVote, &body, func() any {
		return service.CloseVoteArgs{PollID: id}
	}, http.StatusOK)
}

// CreatePrediction opens a yes/no prediction. Creator only.
// POST /api/tokens/{token}/predictions
func (h *VaultHandler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var args service.CreatePredictionArgs
	h.write(w, r, domain.CmdCreatePrediction, &args, http.StatusCreated)
}

// GetPrediction returns a prediction and its tallies.
// GET /api/tokens/{token}/predictions/{id}
func (h *VaultHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.svc.Prediction(addr, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get prediction", err)
		return
	}
	writeJSON(w, http.StatusOK, newPredictionView(p))
}

// Predict answers a prediction.
// POST /api/tokens/{token}/predictions/{id}/predict
func (h *VaultHandler) Predict(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, domain.CmdPredict)
}

// ResolvePrediction settles a prediction after its deadline. Creator only.
// POST /api/tokens/{token}/predictions/{id}/resolve
func (h *VaultHandler) ResolvePrediction(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, domain.CmdResolvePrediction)
}

func (h *VaultHandler) outcome(w http.ResponseWriter, r *http.Request, kind domain.CommandKind) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Outcome bool `json:"outcome"`
	}
	h.writeWith(w, r, kind, &body, func() any {
		if kind == domain.CmdResolvePrediction {
			return service.ResolvePredictionArgs{PredictionID: id, Outcome: body.Outcome}
		}
		return service.PredictArgs{PredictionID: id, Outcome: body.Outcome}
	}, http.StatusOK)
}

func (h *VaultHandler) write(w http.ResponseWriter, r *http.Request, kind domain.CommandKind, args any, status int) {
	h.writeWith(w, r, kind, args, func() any { return args }, status)
}

// writeWith decodes the body into dst, then executes the args built by
// build once decoding succeeded.
func (h *VaultHandler) writeWith(w http.ResponseWriter, r *http.Request, kind domain.CommandKind, dst any, build func() any, status int) {
	addr, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	if !decodeBody(w, r, dst) {
		return
	}
	execute(w, r, h.svc, h.logger, kind, addr, build(), status)
}
