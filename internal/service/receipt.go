package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/eventlog"
	"github.com/alanyoungcy/pumpfight/internal/notify"
	"github.com/alanyoungcy/pumpfight/internal/token"
)

// notifyTimeout bounds a single notification fan-out.
const notifyTimeout = 15 * time.Second

// Receipt describes one logged write and everything it emitted.
type Receipt struct {
	Seq          int64
	CommandID    string
	Kind         domain.CommandKind
	Time         time.Time
	Token        common.Address
	Events       []domain.EventRecord
	Payouts      []domain.Payout
	Info         *domain.TokenInfo
	Buy          *token.BuyResult
	Sell         *token.SellResult
	PollID       *uint64
	PredictionID *uint64
}

// EventView is the JSON shape of an event on the bus, the websocket and the
// HTTP history endpoint.
type EventView struct {
	Seq       int64           `json:"seq"`
	Contract  string          `json:"contract"`
	Token     string          `json:"token"`
	Name      string          `json:"name"`
	Fields    json.RawMessage `json:"fields"`
	Topics    []string        `json:"topics"`
	Data      string          `json:"data"`
	Signature string          `json:"signature,omitempty"`
	Time      time.Time       `json:"time"`
}

// NewEventView renders a persisted event.
func NewEventView(r domain.EventRecord) EventView {
	v := EventView{
		Seq:      r.Seq,
		Contract: r.Contract.Hex(),
		Token:    r.Token.Hex(),
		Name:     r.Name,
		Fields:   r.Payload,
		Topics:   make([]string, len(r.Topics)),
		Data:     hexutil.Encode(r.Data),
		Time:     r.CreatedAt,
	}
	if len(v.Fields) == 0 {
		v.Fields = json.RawMessage("{}")
	}
	for i, t := range r.Topics {
		v.Topics[i] = t.Hex()
	}
	if len(r.Signature) > 0 {
		v.Signature = hexutil.Encode(r.Signature)
	}
	return v
}

// record fans a logged command out to every side store. Failures here are
// logged and counted but never undo the command: the log is authoritative
// and replay mode rewrites the derived tables.
func (s *LaunchpadService) record(ctx context.Context, cmd domain.Command, out *outcome) *Receipt {
	r := &Receipt{
		Seq:          cmd.Seq,
		CommandID:    cmd.ID,
		Kind:         cmd.Kind,
		Time:         cmd.Time,
		Token:        out.token,
		Info:         out.info,
		Buy:          out.buy,
		Sell:         out.sell,
		PollID:       out.pollID,
		PredictionID: out.predictionID,
	}

	r.Payouts = s.payer.Drain()
	for i := range r.Payouts {
		r.Payouts[i].Seq = cmd.Seq
		r.Payouts[i].CreatedAt = cmd.Time
	}
	if len(r.Payouts) > 0 {
		if err := s.payoutStore.InsertBatch(ctx, cmd.Seq, r.Payouts); err != nil {
			s.persistFailed(ctx, "insert payouts", cmd, err)
		}
	}

	events, err := s.encodeEvents(cmd, out)
	if err != nil {
		s.persistFailed(ctx, "encode events", cmd, err)
	}
	r.Events = events
	if len(events) > 0 {
		if err := s.events.InsertBatch(ctx, cmd.Seq, events); err != nil {
			s.persistFailed(ctx, "insert events", cmd, err)
		}
	}

	if out.info != nil {
		if err := s.tokens.Upsert(ctx, *out.info); err != nil {
			s.persistFailed(ctx, "upsert token", cmd, err)
		}
		if s.metrics != nil {
			s.metrics.Tokens.Set(float64(len(s.factory.Tokens())))
		}
	}

	if audited(cmd.Kind) {
		detail := map[string]any{
			"seq":    cmd.Seq,
			"token":  out.token.Hex(),
			"caller": cmd.Caller.Hex(),
		}
		if err := s.audit.Log(ctx, "command."+string(cmd.Kind), detail); err != nil {
			s.persistFailed(ctx, "audit", cmd, err)
		}
	}

	if s.state != nil {
		if tok, ok := s.factory.Token(out.token); ok {
			if err := s.state.SetState(ctx, out.token, tok.State(), cmd.Time); err != nil {
				s.persistFailed(ctx, "cache state", cmd, err)
			}
		}
	}

	s.publish(ctx, cmd, events)
	s.notify(ctx, events)

	if s.metrics != nil {
		for _, ev := range events {
			s.metrics.Events.WithLabelValues(ev.Name).Inc()
		}
		for _, p := range r.Payouts {
			s.metrics.Payouts.WithLabelValues(string(p.Reason)).Inc()
		}
	}
	return r
}

// audited lists the operator and creator actions copied to the audit log.
func audited(kind domain.CommandKind) bool {
	switch kind {
	case domain.CmdCreateToken, domain.CmdPause, domain.CmdUnpause,
		domain.CmdGraduate, domain.CmdCloseVote, domain.CmdResolvePrediction:
		return true
	}
	return false
}

// encodeEvents turns the outcome's events into log records, signed when a
// signer is configured.
func (s *LaunchpadService) encodeEvents(cmd domain.Command, out *outcome) ([]domain.EventRecord, error) {
	recs := make([]domain.EventRecord, 0, len(out.emitted))
	for _, e := range out.emitted {
		log, err := eventlog.Encode(e.contract, e.event)
		if err != nil {
			return recs, err
		}
		name, fields, err := eventlog.Decode(log)
		if err != nil {
			return recs, err
		}
		payload, err := json.Marshal(renderFields(fields))
		if err != nil {
			return recs, fmt.Errorf("launchpad_service: marshal %s: %w", name, err)
		}

		rec := domain.EventRecord{
			Seq:       cmd.Seq,
			Contract:  e.contract,
			Token:     out.token,
			Name:      name,
			Payload:   payload,
			Topics:    log.Topics,
			Data:      log.Data,
			CreatedAt: cmd.Time,
		}
		if s.signer != nil {
			sig, err := s.signer.SignLog(log)
			if err != nil {
				return recs, err
			}
			rec.Signature = sig
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// renderFields makes decoded ABI values JSON friendly: integers become
// decimal wei strings and addresses checksummed hex.
func renderFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case *big.Int:
			out[k] = x.String()
		case common.Address:
			out[k] = x.Hex()
		default:
			out[k] = x
		}
	}
	return out
}

func (s *LaunchpadService) publish(ctx context.Context, cmd domain.Command, events []domain.EventRecord) {
	if s.bus == nil {
		return
	}
	for _, ev := range events {
		payload, err := json.Marshal(NewEventView(ev))
		if err != nil {
			s.persistFailed(ctx, "marshal event view", cmd, err)
			continue
		}
		if err := s.bus.Publish(ctx, domain.TokenChannel(ev.Token), payload); err != nil {
			s.persistFailed(ctx, "publish event", cmd, err)
		}
		if err := s.bus.StreamAppend(ctx, domain.EventStream(ev.Token), payload); err != nil {
			s.persistFailed(ctx, "stream event", cmd, err)
		}
	}
}

// notify hands milestone events to the notifier off the write path.
func (s *LaunchpadService) notify(ctx context.Context, events []domain.EventRecord) {
	if s.notifier == nil {
		return
	}
	for _, ev := range events {
		name := snakeCase(ev.Name)
		if !s.notifier.Enabled(name) {
			continue
		}
		msg := notify.Message{
			Event:  name,
			Title:  fmt.Sprintf("%s on %s", ev.Name, ev.Token.Hex()),
			Body:   fmt.Sprintf("%s emitted by %s at seq %d", ev.Name, ev.Contract.Hex(), ev.Seq),
			Fields: stringFields(ev.Payload),
		}
		go func() {
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			if err := s.notifier.Notify(nctx, msg); err != nil {
				s.logger.WarnContext(nctx, "launchpad_service: notify failed",
					slog.String("event", msg.Event),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}

func stringFields(payload json.RawMessage) map[string]string {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// snakeCase maps event names to notification types: TokenCreated becomes
// token_created.
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *LaunchpadService) persistFailed(ctx context.Context, step string, cmd domain.Command, err error) {
	if s.metrics != nil {
		s.metrics.PersistErrors.Inc()
	}
	s.logger.ErrorContext(ctx, "launchpad_service: "+step+" failed",
		slog.Int64("seq", cmd.Seq),
		slog.String("kind", string(cmd.Kind)),
		slog.String("error", err.Error()),
	)
}
