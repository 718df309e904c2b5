package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/factory"
	"github.com/alanyoungcy/pumpfight/internal/metrics"
	"github.com/alanyoungcy/pumpfight/internal/notify"
	"github.com/alanyoungcy/pumpfight/internal/token"
	"github.com/alanyoungcy/pumpfight/internal/vault"
)

// writerLockKey serialises writes across replicas sharing one command log.
const writerLockKey = "launchpad:writer"

// replayBatch is the page size used when reading the command log.
const replayBatch = 500

// ErrReplayDiverged is returned when a logged command no longer applies
// cleanly to the rebuilt engine.
var ErrReplayDiverged = errors.New("replay diverged")

// LogSigner signs encoded event logs so receipts can be verified offline.
type LogSigner interface {
	SignLog(log *types.Log) ([]byte, error)
	Address() common.Address
}

// Notifier forwards milestone events to chat channels and webhooks.
type Notifier interface {
	Enabled(event string) bool
	Notify(ctx context.Context, msg notify.Message) error
}

// LaunchpadService owns the factory and every token and vault it created.
// Writes are serialised, appended to the command log and then fanned out to
// the event store, payout store, registry, caches and bus. Reads run
// concurrently against the in-memory engine.
type LaunchpadService struct {
	mu      sync.RWMutex
	params  factory.Params
	factory *factory.Factory
	payer   *domain.PayoutBuffer
	lastSeq int64
	stale   bool

	commands    domain.CommandStore
	tokens      domain.TokenStore
	events      domain.EventStore
	payoutStore domain.PayoutStore
	audit       domain.AuditStore

	bus      domain.SignalBus
	state    domain.CurveStateCache
	lock     domain.LockManager
	lockTTL  time.Duration
	signer   LogSigner
	notifier Notifier
	metrics  *metrics.Metrics
	dedup    *Dedup

	now    func() time.Time
	logger *slog.Logger
}

// NewLaunchpadService creates a service with an empty engine. Call Replay
// before serving to restore state from the command log. params.Payer is
// ignored; the service records payouts itself.
func NewLaunchpadService(
	params factory.Params,
	commands domain.CommandStore,
	tokens domain.TokenStore,
	events domain.EventStore,
	payouts domain.PayoutStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) (*LaunchpadService, error) {
	s := &LaunchpadService{
		params:      params,
		commands:    commands,
		tokens:      tokens,
		events:      events,
		payoutStore: payouts,
		audit:       audit,
		dedup:       NewDedup(10 * time.Minute),
		now:         time.Now,
		logger:      logger.With(slog.String("component", "launchpad_service")),
	}
	if err := s.resetEngine(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithBus publishes every event to its token channel and stream.
func (s *LaunchpadService) WithBus(bus domain.SignalBus) *LaunchpadService {
	s.bus = bus
	return s
}

// WithStateCache mirrors curve state after each write.
func (s *LaunchpadService) WithStateCache(c domain.CurveStateCache) *LaunchpadService {
	s.state = c
	return s
}

// WithLock takes a distributed lock around every write and catches up on
// commands written by other replicas before applying.
func (s *LaunchpadService) WithLock(lock domain.LockManager, ttl time.Duration) *LaunchpadService {
	s.lock = lock
	s.lockTTL = ttl
	return s
}

// WithSigner signs every event log.
func (s *LaunchpadService) WithSigner(signer LogSigner) *LaunchpadService {
	s.signer = signer
	return s
}

// WithNotifier forwards milestone events.
func (s *LaunchpadService) WithNotifier(n Notifier) *LaunchpadService {
	s.notifier = n
	return s
}

// WithMetrics records command and event counters.
func (s *LaunchpadService) WithMetrics(m *metrics.Metrics) *LaunchpadService {
	s.metrics = m
	return s
}

// WithIdempotencyTTL replaces the dedup window.
func (s *LaunchpadService) WithIdempotencyTTL(ttl time.Duration) *LaunchpadService {
	s.dedup = NewDedup(ttl)
	return s
}

// WithClock overrides the wall clock. Tests use it for deterministic time.
func (s *LaunchpadService) WithClock(now func() time.Time) *LaunchpadService {
	s.now = now
	return s
}

// Dedup exposes the idempotency cache so the serve loop can expire it.
func (s *LaunchpadService) Dedup() *Dedup {
	return s.dedup
}

// Execute validates and applies one write. A non-empty idemKey returns the
// earlier receipt when the same caller sent the same kind of command for the
// same token under that key within the dedup window. The lookup runs under the
// writer lock so concurrent retries apply once.
func (s *LaunchpadService) Execute(
	ctx context.Context,
	kind domain.CommandKind,
	tokenAddr, caller common.Address,
	args any,
	idemKey string,
) (*Receipt, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("launchpad_service: %s: encode args: %w", kind, err)
	}

	if s.lock != nil {
		unlock, err := s.lock.Acquire(ctx, writerLockKey, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("launchpad_service: %s: %w", kind, err)
		}
		defer unlock()
	}

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale || s.lock != nil {
		if err := s.catchUp(ctx); err != nil {
			return nil, fmt.Errorf("launchpad_service: %s: %w", kind, err)
		}
	}

	var dedupKey string
	if idemKey != "" {
		dedupKey = DedupKey(caller, kind, tokenAddr, idemKey)
		if r, ok := s.dedup.Lookup(dedupKey, s.now()); ok {
			s.countCommand(kind, "duplicate")
			return r, nil
		}
	}

	cmd := domain.Command{
		ID:     uuid.NewString(),
		Kind:   kind,
		Token:  tokenAddr,
		Caller: caller,
		Args:   raw,
		Time:   s.now().UTC().Truncate(time.Microsecond),
	}

	out, err := s.apply(cmd)
	if err != nil {
		s.payer.Drain()
		s.countCommand(kind, "rejected")
		return nil, fmt.Errorf("launchpad_service: %s: %w", kind, err)
	}

	seq, err := s.commands.Append(ctx, cmd)
	if err != nil {
		s.payer.Drain()
		s.countCommand(kind, "error")
		s.logger.ErrorContext(ctx, "launchpad_service: append command failed, rebuilding",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		s.stale = true
		if rerr := s.catchUp(ctx); rerr != nil {
			s.logger.ErrorContext(ctx, "launchpad_service: rebuild failed",
				slog.String("error", rerr.Error()),
			)
		}
		return nil, fmt.Errorf("launchpad_service: %s: log command: %w", kind, err)
	}
	cmd.Seq = seq
	s.lastSeq = seq

	receipt := s.record(ctx, cmd, out)
	s.countCommand(kind, "ok")
	if s.metrics != nil {
		s.metrics.ApplySeconds.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}
	if dedupKey != "" {
		s.dedup.Remember(dedupKey, receipt, s.now())
	}
	return receipt, nil
}

// Replay rebuilds the engine from the full command log and returns the number
// of commands applied.
func (s *LaunchpadService) Replay(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resetEngine(); err != nil {
		return 0, err
	}
	n, err := s.applyLog(ctx)
	if err != nil {
		s.stale = true
		return n, err
	}
	s.stale = false
	s.logger.InfoContext(ctx, "launchpad_service: replay complete",
		slog.Int("commands", n),
		slog.Int64("last_seq", s.lastSeq),
		slog.Int("tokens", len(s.factory.Tokens())),
	)
	if s.metrics != nil {
		s.metrics.Tokens.Set(float64(len(s.factory.Tokens())))
	}
	return n, nil
}

// Resync rewrites the token registry and state cache from the engine.
// Replay mode runs it after rebuilding so derived tables match the log.
func (s *LaunchpadService) Resync(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	ts := s.now().UTC()
	for _, addr := range s.factory.Tokens() {
		info, _ := s.factory.Info(addr)
		if err := s.tokens.Upsert(ctx, info); err != nil {
			errs = append(errs, err)
			continue
		}
		if s.state != nil {
			tok, _ := s.factory.Token(addr)
			if err := s.state.SetState(ctx, addr, tok.State(), ts); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("launchpad_service: resync: %w", err)
	}
	return nil
}

// LastSeq returns the sequence number of the newest applied command.
func (s *LaunchpadService) LastSeq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// Stale reports whether the engine is waiting for a rebuild after a failed
// command log write.
func (s *LaunchpadService) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// resetEngine discards all in-memory state. Callers hold mu or own s
// exclusively.
func (s *LaunchpadService) resetEngine() error {
	buf := &domain.PayoutBuffer{}
	p := s.params
	p.Payer = buf
	f, err := factory.New(p)
	if err != nil {
		return fmt.Errorf("launchpad_service: %w", err)
	}
	s.factory = f
	s.payer = buf
	s.lastSeq = 0
	return nil
}

// catchUp applies commands logged after lastSeq, or rebuilds from scratch
// when the engine is stale.
func (s *LaunchpadService) catchUp(ctx context.Context) error {
	if s.stale {
		if err := s.resetEngine(); err != nil {
			return err
		}
	}
	if _, err := s.applyLog(ctx); err != nil {
		s.stale = true
		return err
	}
	s.stale = false
	return nil
}

func (s *LaunchpadService) applyLog(ctx context.Context) (int, error) {
	n := 0
	for {
		cmds, err := s.commands.ListAfter(ctx, s.lastSeq, replayBatch)
		if err != nil {
			return n, fmt.Errorf("launchpad_service: read command log: %w", err)
		}
		for _, cmd := range cmds {
			if _, err := s.apply(cmd); err != nil {
				s.payer.Drain()
				return n, fmt.Errorf("launchpad_service: %w at seq %d (%s): %w",
					ErrReplayDiverged, cmd.Seq, cmd.Kind, err)
			}
			s.payer.Drain()
			s.lastSeq = cmd.Seq
			n++
		}
		if len(cmds) < replayBatch {
			return n, nil
		}
	}
}

// emitted is an event together with the contract that raised it.
type emitted struct {
	contract common.Address
	event    domain.Event
}

// outcome is what a successful apply produced.
type outcome struct {
	token        common.Address
	info         *domain.TokenInfo
	buy          *token.BuyResult
	sell         *token.SellResult
	pollID       *uint64
	predictionID *uint64
	emitted      []emitted
}

func (o *outcome) emit(contract common.Address, evs ...domain.Event) {
	for _, ev := range evs {
		o.emitted = append(o.emitted, emitted{contract: contract, event: ev})
	}
}

// apply runs cmd against the engine. It is deterministic in cmd alone.
func (s *LaunchpadService) apply(cmd domain.Command) (*outcome, error) {
	out := &outcome{token: cmd.Token}

	switch cmd.Kind {
	case domain.CmdCreateToken:
		var a CreateTokenArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		p, fee, err := a.params()
		if err != nil {
			return nil, err
		}
		created, err := s.factory.CreateToken(cmd.Caller, p, fee, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.token = created.Info.Address
		out.info = &created.Info
		out.emit(s.factory.Address(), created.Events...)

	case domain.CmdBuy:
		tok, err := s.token(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a BuyArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		payment, err := amount("payment", a.Payment)
		if err != nil {
			return nil, err
		}
		minOut, err := optAmount("min_tokens_out", a.MinTokensOut)
		if err != nil {
			return nil, err
		}
		res, err := tok.Buy(cmd.Caller, payment, minOut, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.buy = res
		out.emit(tok.Address(), res.Events...)

	case domain.CmdSell:
		tok, err := s.token(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a SellArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		amt, err := amount("amount", a.Amount)
		if err != nil {
			return nil, err
		}
		minPay, err := optAmount("min_payment_out", a.MinPaymentOut)
		if err != nil {
			return nil, err
		}
		res, err := tok.Sell(cmd.Caller, amt, minPay, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.sell = res
		out.emit(tok.Address(), res.Events...)

	case domain.CmdPause, domain.CmdUnpause, domain.CmdGraduate:
		tok, err := s.token(cmd.Token)
		if err != nil {
			return nil, err
		}
		op := tok.Pause
		switch cmd.Kind {
		case domain.CmdUnpause:
			op = tok.Unpause
		case domain.CmdGraduate:
			op = tok.Graduate
		}
		evs, err := op(cmd.Caller)
		if err != nil {
			return nil, err
		}
		out.emit(tok.Address(), evs...)

	case domain.CmdStake, domain.CmdUnstake:
		v, err := s.vault(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a StakeArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		amt, err := amount("amount", a.Amount)
		if err != nil {
			return nil, err
		}
		op := v.Stake
		if cmd.Kind == domain.CmdUnstake {
			op = v.Unstake
		}
		evs, err := op(cmd.Caller, amt, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.emit(v.Address(), evs...)

	case domain.CmdCreateVote:
		v, err := s.vault(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a CreateVoteArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		minStake, err := optAmount("min_stake", a.MinStake)
		if err != nil {
			return nil, err
		}
		id, evs, err := v.CreateVote(cmd.Caller, a.Topic, a.Options, seconds(a.DurationSeconds), minStake, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.pollID = &id
		out.emit(v.Address(), evs...)

	case domain.CmdCastVote:
		v, err := s.vault(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a CastVoteArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		evs, err := v.CastVote(cmd.Caller, a.PollID, a.Option, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.pollID = &a.PollID
		out.emit(v.Address(), evs...)

	case domain.CmdCloseVote:
		v, err := s.vault(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a CloseVoteArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		evs, err := v.CloseVote(cmd.Caller, a.PollID, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.pollID = &a.PollID
		out.emit(v.Address(), evs...)

	case domain.CmdCreatePrediction:
		v, err := s.vault(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a CreatePredictionArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		id, evs, err := v.CreatePrediction(cmd.Caller, a.Question, seconds(a.DurationSeconds), cmd.Time)
		if err != nil {
			return nil, err
		}
		out.predictionID = &id
		out.emit(v.Address(), evs...)

	case domain.CmdPredict, domain.CmdResolvePrediction:
		v, err := s.vault(cmd.Token)
		if err != nil {
			return nil, err
		}
		var a PredictArgs
		if err := decodeArgs(cmd.Args, &a); err != nil {
			return nil, err
		}
		op := v.Predict
		if cmd.Kind == domain.CmdResolvePrediction {
			op = v.ResolvePrediction
		}
		evs, err := op(cmd.Caller, a.PredictionID, a.Outcome, cmd.Time)
		if err != nil {
			return nil, err
		}
		out.predictionID = &a.PredictionID
		out.emit(v.Address(), evs...)

	default:
		return nil, fmt.Errorf("%w: unknown command %q", domain.ErrInvalidArgument, cmd.Kind)
	}
	return out, nil
}

func (s *LaunchpadService) token(addr common.Address) (*token.Token, error) {
	tok, ok := s.factory.Token(addr)
	if !ok {
		return nil, fmt.Errorf("token %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return tok, nil
}

func (s *LaunchpadService) vault(tokenAddr common.Address) (*vault.Vault, error) {
	v, ok := s.factory.Vault(tokenAddr)
	if !ok {
		return nil, fmt.Errorf("vault for %s: %w", tokenAddr.Hex(), domain.ErrNotFound)
	}
	return v, nil
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func (s *LaunchpadService) countCommand(kind domain.CommandKind, result string) {
	if s.metrics != nil {
		s.metrics.Commands.WithLabelValues(string(kind), result).Inc()
	}
}
