package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/alanyoungcy/pumpfight/internal/cache/memory"
	"github.com/alanyoungcy/pumpfight/internal/crypto"
	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/factory"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
	"github.com/alanyoungcy/pumpfight/internal/notify"
	memstore "github.com/alanyoungcy/pumpfight/internal/store/memory"
)

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000d4")
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testParams() factory.Params {
	return factory.Params{
		Address:     common.HexToAddress("0x00000000000000000000000000000000000f1647"),
		Operator:    operator,
		Treasury:    treasury,
		CreationFee: fixed.Units(100),
		Defaults: domain.TokenConfig{
			InitialPrice:     fixed.MustParse("0.001"),
			StepSize:         fixed.Units(1000),
			Rule:             domain.Additive(fixed.MustParse("0.0001")),
			GraduationTarget: fixed.Units(1000),
			CreatorShareBps:  500,
			PlatformFeeBps:   250,
			MaxSupply:        fixed.Units(1_000_000),
			AntiRug:          domain.AntiRugConfig{SellCooldown: time.Hour, MaxSellBps: 10_000},
		},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store *memstore.Store, clk *clock) *LaunchpadService {
	t.Helper()
	svc, err := NewLaunchpadService(testParams(),
		store.Commands(), store.Tokens(), store.Events(), store.Payouts(), store.Audit(), discard())
	require.NoError(t, err)
	return svc.WithClock(clk.now)
}

// launch creates a token as creator and returns its address.
func launch(t *testing.T, svc *LaunchpadService) common.Address {
	t.Helper()
	r, err := svc.Execute(context.Background(), domain.CmdCreateToken, common.Address{}, creator,
		CreateTokenArgs{Name: "Fight Club", Symbol: "fc", FeePaid: "120"}, "")
	require.NoError(t, err)
	require.NotNil(t, r.Info)
	return r.Info.Address
}

func TestCreateTokenRecordsEverything(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, store, clk)

	r, err := svc.Execute(ctx, domain.CmdCreateToken, common.Address{}, creator,
		CreateTokenArgs{Name: "Fight Club", Symbol: "fc", FeePaid: "120"}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, "FC", r.Info.Config.Symbol)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "TokenCreated", r.Events[0].Name)
	assert.Equal(t, r.Info.Address, r.Events[0].Token)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(r.Events[0].Payload, &fields))
	assert.Equal(t, "FC", fields["symbol"])
	assert.Equal(t, creator.Hex(), fields["creator"])

	require.Len(t, r.Payouts, 2)
	assert.Equal(t, domain.PayoutCreationFee, r.Payouts[0].Reason)
	assert.Equal(t, treasury, r.Payouts[0].To)
	assert.Equal(t, domain.PayoutFeeRefund, r.Payouts[1].Reason)
	assert.Equal(t, 0, r.Payouts[1].Amount.Cmp(fixed.Units(20)))

	info, err := store.Tokens().GetByAddress(ctx, r.Info.Address)
	require.NoError(t, err)
	assert.Equal(t, creator, info.Creator)

	refunds, err := svc.Payouts(ctx, creator, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, refunds, 1)

	audit, err := store.Audit().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "command.create_token", audit[0].Event)

	assert.Len(t, svc.Tokens(&creator), 1)
	assert.Empty(t, svc.Tokens(&alice))
}

func TestRejectedCommandIsNotLogged(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newTestService(t, store, &clock{t: time.Unix(1_700_000_000, 0)})
	tok := launch(t, svc)

	_, err := svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "0"}, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)

	_, err = svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "abc"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Execute(ctx, domain.CmdPause, tok, alice, struct{}{}, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Execute(ctx, domain.CmdBuy, common.HexToAddress("0x99"), alice, BuyArgs{Payment: "1"}, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Execute(ctx, domain.CommandKind("mint"), tok, alice, struct{}{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	last, err := store.Commands().LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
	assert.Equal(t, int64(1), svc.LastSeq())
}

func TestBuySellStakeVoteAndReplay(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, store, clk)
	tok := launch(t, svc)

	buy, err := svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "0.5"}, "")
	require.NoError(t, err)
	require.NotNil(t, buy.Buy)
	assert.Positive(t, buy.Buy.TokensOut.Sign())
	require.Len(t, buy.Payouts, 2)
	assert.Equal(t, "TokensPurchased", buy.Events[0].Name)

	_, err = svc.Execute(ctx, domain.CmdSell, tok, alice, SellArgs{Amount: "10"}, "")
	assert.ErrorIs(t, err, domain.ErrSellCooldownActive)

	clk.advance(2 * time.Hour)
	sell, err := svc.Execute(ctx, domain.CmdSell, tok, alice, SellArgs{Amount: "10"}, "")
	require.NoError(t, err)
	require.NotNil(t, sell.Sell)
	require.Len(t, sell.Payouts, 1)
	assert.Equal(t, domain.PayoutSellProceeds, sell.Payouts[0].Reason)

	_, err = svc.Execute(ctx, domain.CmdStake, tok, alice, StakeArgs{Amount: "100"}, "")
	require.NoError(t, err)

	vote, err := svc.Execute(ctx, domain.CmdCreateVote, tok, creator, CreateVoteArgs{
		Topic: "next opponent", Options: []string{"red", "blue"}, DurationSeconds: 3600,
	}, "")
	require.NoError(t, err)
	require.NotNil(t, vote.PollID)

	_, err = svc.Execute(ctx, domain.CmdCastVote, tok, alice, CastVoteArgs{PollID: *vote.PollID, Option: 1}, "")
	require.NoError(t, err)

	pred, err := svc.Execute(ctx, domain.CmdCreatePrediction, tok, creator, CreatePredictionArgs{
		Question: "knockout?", DurationSeconds: 600,
	}, "")
	require.NoError(t, err)
	_, err = svc.Execute(ctx, domain.CmdPredict, tok, alice, PredictArgs{PredictionID: *pred.PredictionID, Outcome: true}, "")
	require.NoError(t, err)

	wantState, err := svc.State(tok)
	require.NoError(t, err)
	wantBal, err := svc.Balance(tok, alice)
	require.NoError(t, err)
	wantStake, err := svc.Stake(tok, alice)
	require.NoError(t, err)
	wantOpt, err := svc.VoteOption(tok, *vote.PollID, 1)
	require.NoError(t, err)

	replayed := newTestService(t, store, clk)
	n, err := replayed.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, svc.LastSeq(), replayed.LastSeq())

	gotState, err := replayed.State(tok)
	require.NoError(t, err)
	assertSameState(t, wantState, gotState)

	gotBal, err := replayed.Balance(tok, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, wantBal.Cmp(gotBal))

	gotStake, err := replayed.Stake(tok, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, wantStake.VotingPower.Cmp(gotStake.VotingPower))
	assert.True(t, wantStake.Stake.StakingStartTime.Equal(gotStake.Stake.StakingStartTime))

	gotOpt, err := replayed.VoteOption(tok, *vote.PollID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, wantOpt.Weight.Cmp(gotOpt.Weight))

	voted, err := replayed.HasVoted(tok, *vote.PollID, alice)
	require.NoError(t, err)
	assert.True(t, voted)

	p, err := replayed.Prediction(tok, *pred.PredictionID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Predictors)
}

func TestReplayDivergence(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.Commands().Append(ctx, domain.Command{
		ID:     "bogus",
		Kind:   domain.CmdBuy,
		Token:  common.HexToAddress("0x99"),
		Caller: alice,
		Args:   json.RawMessage(`{"payment":"1"}`),
		Time:   time.Unix(1_700_000_000, 0).UTC(),
	})
	require.NoError(t, err)

	svc := newTestService(t, store, &clock{t: time.Unix(1_700_000_000, 0)})
	_, err = svc.Replay(ctx)
	assert.ErrorIs(t, err, ErrReplayDiverged)
	assert.True(t, svc.Stale())
}

func TestAppendFailureRebuildsEngine(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newTestService(t, store, &clock{t: time.Unix(1_700_000_000, 0)})
	tok := launch(t, svc)

	before, err := svc.State(tok)
	require.NoError(t, err)

	store.FailAppend = errors.New("connection reset")
	_, err = svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "1"}, "")
	require.Error(t, err)

	after, err := svc.State(tok)
	require.NoError(t, err)
	assertSameState(t, before, after)
	bal, err := svc.Balance(tok, alice)
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())

	store.FailAppend = nil
	_, err = svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "1"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), svc.LastSeq())
}

func TestIdempotencyKeyReturnsStoredReceipt(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newTestService(t, store, &clock{t: time.Unix(1_700_000_000, 0)})
	tok := launch(t, svc)

	first, err := svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "0.1"}, "key-1")
	require.NoError(t, err)
	second, err := svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "0.1"}, "key-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(2), svc.LastSeq())
}

func TestIdempotencyKeysAreScopedPerCallerAndCommand(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newTestService(t, store, &clock{t: time.Unix(1_700_000_000, 0)})
	tok := launch(t, svc)
	bob := common.HexToAddress("0x00000000000000000000000000000000000000e5")

	_, err := svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "0.1"}, "1")
	require.NoError(t, err)

	_, err = svc.Execute(ctx, domain.CmdSell, tok, bob, SellArgs{Amount: "5"}, "1")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = svc.Execute(ctx, domain.CmdSell, tok, alice, SellArgs{Amount: "5"}, "1")
	require.ErrorIs(t, err, domain.ErrSellCooldownActive)

	assert.Equal(t, int64(2), svc.LastSeq())
}

func TestConcurrentRetriesApplyOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newTestService(t, store, &clock{t: time.Unix(1_700_000_000, 0)})
	tok := launch(t, svc)

	const retries = 8
	receipts := make([]*Receipt, retries)
	errs := make([]error, retries)
	var wg sync.WaitGroup
	for i := range retries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipts[i], errs[i] = svc.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "0.1"}, "retry")
		}()
	}
	wg.Wait()

	for i := range retries {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(2), receipts[i].Seq)
	}
	assert.Equal(t, int64(2), svc.LastSeq())
}

func TestCatchUpAppliesOtherReplicaCommands(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	lock := &localLock{}

	a := newTestService(t, store, clk).WithLock(lock, time.Second)
	b := newTestService(t, store, clk).WithLock(lock, time.Second)

	tok := launch(t, a)
	_, err := b.Execute(ctx, domain.CmdBuy, tok, alice, BuyArgs{Payment: "0.2"}, "")
	require.NoError(t, err)
	_, err = a.Execute(ctx, domain.CmdBuy, tok, creator, BuyArgs{Payment: "0.2"}, "")
	require.NoError(t, err)

	sa, err := a.State(tok)
	require.NoError(t, err)
	sb, err := b.State(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.LastSeq())
	assert.Equal(t, 1, sa.TokensSold.Cmp(sb.TokensSold), "b has not seen a's last buy yet")

	_, err = b.Execute(ctx, domain.CmdStake, tok, alice, StakeArgs{Amount: "1"}, "")
	require.NoError(t, err)
	bal, err := b.Balance(tok, creator)
	require.NoError(t, err)
	assert.Positive(t, bal.Sign())
}

func TestEventsSignedPublishedAndNotified(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.NewSigner(key)

	bus := memcache.NewBus(100)
	sub, err := bus.Subscribe(ctx, domain.ChannelAllTokens)
	require.NoError(t, err)

	n := &recordingNotifier{events: map[string]bool{"token_created": true}, sent: make(chan notify.Message, 4)}
	store := memstore.New()
	svc := newTestService(t, store, &clock{t: time.Unix(1_700_000_000, 0)}).
		WithSigner(signer).
		WithBus(bus).
		WithNotifier(n)

	tok := launch(t, svc)

	select {
	case raw := <-sub:
		var view EventView
		require.NoError(t, json.Unmarshal(raw, &view))
		assert.Equal(t, "TokenCreated", view.Name)
		assert.Equal(t, tok.Hex(), view.Token)
		assert.NotEmpty(t, view.Signature)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	stream, err := bus.StreamRead(ctx, domain.EventStream(tok), "0", 10)
	require.NoError(t, err)
	assert.Len(t, stream, 1)

	select {
	case msg := <-n.sent:
		assert.Equal(t, "token_created", msg.Event)
		assert.Equal(t, "FC", msg.Fields["symbol"])
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	evs, err := svc.Events(ctx, tok, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	got, err := crypto.RecoverSigner(crypto.LogDigest(logOf(evs[0])).Bytes(), evs[0].Signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "token_created", snakeCase("TokenCreated"))
	assert.Equal(t, "curve_graduated", snakeCase("CurveGraduated"))
	assert.Equal(t, "vote_cast", snakeCase("VoteCast"))
}

func assertSameState(t *testing.T, want, got domain.CurveState) {
	t.Helper()
	assert.Equal(t, want.Phase, got.Phase)
	assert.Equal(t, want.CurrentStep, got.CurrentStep)
	assert.Equal(t, 0, want.TokensSold.Cmp(got.TokensSold), "tokens sold")
	assert.Equal(t, 0, want.CurrentPrice.Cmp(got.CurrentPrice), "price")
	assert.Equal(t, 0, want.ReserveBalance.Cmp(got.ReserveBalance), "reserve")
	assert.Equal(t, 0, want.NextStepAt.Cmp(got.NextStepAt), "next step")
}

func logOf(r domain.EventRecord) *types.Log {
	return &types.Log{Address: r.Contract, Topics: r.Topics, Data: r.Data}
}

type localLock struct{ mu sync.Mutex }

func (l *localLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

type recordingNotifier struct {
	events map[string]bool
	sent   chan notify.Message
}

func (r *recordingNotifier) Enabled(event string) bool { return r.events[event] }

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.sent <- msg
	return nil
}
