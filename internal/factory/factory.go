// Package factory creates launchpad tokens together with their staking
// vaults and keeps the registry of which creator launched what.
package factory

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/token"
	"github.com/alanyoungcy/pumpfight/internal/vault"
)

// Params configures a Factory.
type Params struct {
	Address     common.Address
	Operator    common.Address // pauses, unpauses and graduates every token
	Treasury    common.Address // receives creation and platform fees
	CreationFee *big.Int
	Defaults    domain.TokenConfig
	Payer       domain.Payer
}

// CreateParams are the creator-supplied launch options. Nil or zero fields
// fall back to the factory defaults.
type CreateParams struct {
	Name             string
	Symbol           string
	Kind             domain.CurveKind
	InitialPrice     *big.Int
	StepSize         *big.Int
	Factor           uint64
	Increment        *big.Int
	GraduationTarget *big.Int
	MaxSupply        *big.Int
}

// Created is the result of a successful launch.
type Created struct {
	Info   domain.TokenInfo
	Token  *token.Token
	Vault  *vault.Vault
	Events []domain.Event
}

type entry struct {
	info  domain.TokenInfo
	token *token.Token
	vault *vault.Vault
}

// Factory owns every token and vault it created.
type Factory struct {
	addr        common.Address
	operator    common.Address
	treasury    common.Address
	creationFee *big.Int
	defaults    domain.TokenConfig
	payer       domain.Payer

	nonce     uint64
	entries   map[common.Address]*entry
	order     []common.Address
	byCreator map[common.Address][]common.Address

	busy bool
}

// New validates the default config and returns an empty factory.
func New(p Params) (*Factory, error) {
	if err := p.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("factory: new: defaults: %w", err)
	}
	if p.Payer == nil {
		return nil, fmt.Errorf("factory: new: payer is required")
	}
	fee := new(big.Int)
	if p.CreationFee != nil {
		fee.Set(p.CreationFee)
	}
	return &Factory{
		addr:        p.Address,
		operator:    p.Operator,
		treasury:    p.Treasury,
		creationFee: fee,
		defaults:    p.Defaults.Clone(),
		payer:       p.Payer,
		entries:     make(map[common.Address]*entry),
		byCreator:   make(map[common.Address][]common.Address),
	}, nil
}

func (f *Factory) Address() common.Address  { return f.addr }
func (f *Factory) Operator() common.Address { return f.operator }

// CreationFee returns the minimum CHZ a creator must send with CreateToken.
func (f *Factory) CreationFee() *big.Int { return new(big.Int).Set(f.creationFee) }

// DefaultConfig returns the config applied when CreateParams leaves a field
// unset.
func (f *Factory) DefaultConfig() domain.TokenConfig { return f.defaults.Clone() }

// CreateToken launches a token and its vault for creator. feePaid must cover
// the creation fee; any excess is refunded to the creator.
func (f *Factory) CreateToken(creator common.Address, params CreateParams, feePaid *big.Int, now time.Time) (*Created, error) {
	if f.busy {
		return nil, fmt.Errorf("factory: create token: %w", domain.ErrReentrantCall)
	}
	f.busy = true
	defer func() { f.busy = false }()

	if feePaid == nil || feePaid.Cmp(f.creationFee) < 0 {
		return nil, fmt.Errorf("factory: create token: %w: creation fee is %s wei", domain.ErrInsufficientPayment, f.creationFee)
	}
	cfg, err := f.buildConfig(params)
	if err != nil {
		return nil, fmt.Errorf("factory: create token: %w", err)
	}

	tokenAddr := crypto.CreateAddress(f.addr, f.nonce)
	vaultAddr := crypto.CreateAddress(f.addr, f.nonce+1)

	tok, err := token.New(token.Params{
		Address:  tokenAddr,
		Creator:  creator,
		Platform: f.treasury,
		Operator: f.operator,
		Config:   cfg,
		Payer:    f.payer,
	})
	if err != nil {
		return nil, fmt.Errorf("factory: create token: %w", err)
	}
	vlt, err := vault.New(vault.Params{
		Address: vaultAddr,
		Token:   tokenAddr,
		Creator: creator,
		Ledger:  tok,
	})
	if err != nil {
		return nil, fmt.Errorf("factory: create token: %w", err)
	}

	if err := f.payer.Pay(f.addr, f.treasury, f.creationFee, domain.PayoutCreationFee); err != nil {
		return nil, fmt.Errorf("factory: create token: pay treasury: %w", err)
	}
	if excess := new(big.Int).Sub(feePaid, f.creationFee); excess.Sign() > 0 {
		if err := f.payer.Pay(f.addr, creator, excess, domain.PayoutFeeRefund); err != nil {
			return nil, fmt.Errorf("factory: create token: refund: %w", err)
		}
	}

	info := domain.TokenInfo{
		Address:   tokenAddr,
		Vault:     vaultAddr,
		Creator:   creator,
		Config:    cfg,
		CreatedAt: now,
	}
	f.nonce += 2
	f.entries[tokenAddr] = &entry{info: info, token: tok, vault: vlt}
	f.order = append(f.order, tokenAddr)
	f.byCreator[creator] = append(f.byCreator[creator], tokenAddr)

	return &Created{
		Info:  info,
		Token: tok,
		Vault: vlt,
		Events: []domain.Event{domain.TokenCreated{
			Token:   tokenAddr,
			Vault:   vaultAddr,
			Creator: creator,
			Name:    cfg.Name,
			Symbol:  cfg.Symbol,
		}},
	}, nil
}

func (f *Factory) buildConfig(p CreateParams) (domain.TokenConfig, error) {
	cfg := f.defaults.Clone()
	cfg.Name = strings.TrimSpace(p.Name)
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if cfg.Name == "" || cfg.Symbol == "" {
		return domain.TokenConfig{}, fmt.Errorf("%w: name and symbol are required", domain.ErrInvalidConfig)
	}

	if p.InitialPrice != nil {
		cfg.InitialPrice = new(big.Int).Set(p.InitialPrice)
	}
	if p.StepSize != nil {
		cfg.StepSize = new(big.Int).Set(p.StepSize)
	}
	if p.GraduationTarget != nil {
		cfg.GraduationTarget = new(big.Int).Set(p.GraduationTarget)
	}
	if p.MaxSupply != nil {
		cfg.MaxSupply = new(big.Int).Set(p.MaxSupply)
	}

	switch p.Kind {
	case "":
	case domain.CurveMultiplicative:
		factor := p.Factor
		if factor == 0 {
			factor = f.defaults.Rule.Factor
		}
		cfg.Rule = domain.Multiplicative(factor)
	case domain.CurveAdditive:
		if p.Increment == nil {
			return domain.TokenConfig{}, fmt.Errorf("%w: additive curve needs an increment", domain.ErrInvalidConfig)
		}
		cfg.Rule = domain.Additive(p.Increment)
	default:
		return domain.TokenConfig{}, fmt.Errorf("%w: unknown curve kind %q", domain.ErrInvalidConfig, p.Kind)
	}

	if err := cfg.Validate(); err != nil {
		return domain.TokenConfig{}, err
	}
	return cfg, nil
}

// Token returns the token at addr.
func (f *Factory) Token(addr common.Address) (*token.Token, bool) {
	e, ok := f.entries[addr]
	if !ok {
		return nil, false
	}
	return e.token, true
}

// Vault returns the vault paired with the token at addr.
func (f *Factory) Vault(tokenAddr common.Address) (*vault.Vault, bool) {
	e, ok := f.entries[tokenAddr]
	if !ok {
		return nil, false
	}
	return e.vault, true
}

// Info returns the registry entry of the token at addr.
func (f *Factory) Info(addr common.Address) (domain.TokenInfo, bool) {
	e, ok := f.entries[addr]
	if !ok {
		return domain.TokenInfo{}, false
	}
	info := e.info
	info.Config = e.info.Config.Clone()
	return info, true
}

// IsValidToken reports whether addr was created by this factory.
func (f *Factory) IsValidToken(addr common.Address) bool {
	_, ok := f.entries[addr]
	return ok
}

// TokensOf returns the tokens launched by creator in creation order.
func (f *Factory) TokensOf(creator common.Address) []common.Address {
	return append([]common.Address(nil), f.byCreator[creator]...)
}

// Tokens returns every token address in creation order.
func (f *Factory) Tokens() []common.Address {
	return append([]common.Address(nil), f.order...)
}
