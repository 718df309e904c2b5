package vault

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

type prediction struct {
	question   string
	deadline   time.Time
	yes        *big.Int
	no         *big.Int
	predictors map[common.Address]bool
	resolved   bool
	outcome    bool
}

// CreatePrediction opens a yes/no question for stakers. Creator only.
func (v *Vault) CreatePrediction(caller common.Address, question string, duration time.Duration, now time.Time) (uint64, []domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return 0, nil, fmt.Errorf("vault: create prediction: %w", err)
	}
	defer leave()

	if caller != v.creator {
		return 0, nil, fmt.Errorf("vault: create prediction: %w", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(question) == "" {
		return 0, nil, fmt.Errorf("vault: create prediction: %w: empty question", domain.ErrInvalidOption)
	}
	if duration <= 0 {
		return 0, nil, fmt.Errorf("vault: create prediction: %w: duration must be positive", domain.ErrInvalidAmount)
	}

	p := &prediction{
		question:   question,
		deadline:   now.Add(duration),
		yes:        new(big.Int),
		no:         new(big.Int),
		predictors: make(map[common.Address]bool),
	}
	id := uint64(len(v.predictions))
	v.predictions = append(v.predictions, p)

	return id, []domain.Event{domain.PredictionCreated{
		PredictionID: id,
		Question:     question,
		Deadline:     p.deadline.Unix(),
	}}, nil
}

// Predict records predictor's answer weighted by voting power at now.
func (v *Vault) Predict(predictor common.Address, id uint64, outcome bool, now time.Time) ([]domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return nil, fmt.Errorf("vault: predict: %w", err)
	}
	defer leave()

	p, err := v.prediction(id)
	if err != nil {
		return nil, fmt.Errorf("vault: predict: %w", err)
	}
	if p.resolved || !now.Before(p.deadline) {
		return nil, fmt.Errorf("vault: predict: %w", domain.ErrPredictionClosed)
	}
	if p.predictors[predictor] {
		return nil, fmt.Errorf("vault: predict: %w", domain.ErrAlreadyVoted)
	}
	weight := v.VotingPowerOf(predictor, now)
	if weight.Sign() == 0 {
		return nil, fmt.Errorf("vault: predict: %w", domain.ErrNoVotingPower)
	}

	if outcome {
		p.yes.Add(p.yes, weight)
	} else {
		p.no.Add(p.no, weight)
	}
	p.predictors[predictor] = true

	return []domain.Event{domain.PredictionMade{
		Predictor:    predictor,
		PredictionID: id,
		Outcome:      outcome,
		Weight:       weight,
	}}, nil
}

// ResolvePrediction settles the question once its deadline has passed.
func (v *Vault) ResolvePrediction(caller common.Address, id uint64, outcome bool, now time.Time) ([]domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return nil, fmt.Errorf("vault: resolve prediction: %w", err)
	}
	defer leave()

	if caller != v.creator {
		return nil, fmt.Errorf("vault: resolve prediction: %w", domain.ErrUnauthorized)
	}
	p, err := v.prediction(id)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve prediction: %w", err)
	}
	if p.resolved {
		return nil, fmt.Errorf("vault: resolve prediction: %w", domain.ErrPredictionResolved)
	}
	if now.Before(p.deadline) {
		return nil, fmt.Errorf("vault: resolve prediction: %w", domain.ErrPredictionNotEnded)
	}

	p.resolved = true
	p.outcome = outcome

	return []domain.Event{domain.PredictionResolved{PredictionID: id, Outcome: outcome}}, nil
}

// GetPrediction returns a snapshot of the prediction.
func (v *Vault) GetPrediction(id uint64) (domain.Prediction, error) {
	p, err := v.prediction(id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("vault: get prediction: %w", err)
	}
	return domain.Prediction{
		ID:         id,
		Question:   p.question,
		Deadline:   p.deadline,
		YesWeight:  new(big.Int).Set(p.yes),
		NoWeight:   new(big.Int).Set(p.no),
		Predictors: len(p.predictors),
		Resolved:   p.resolved,
		Outcome:    p.outcome,
	}, nil
}

// PredictionCount returns the number of predictions ever created.
func (v *Vault) PredictionCount() uint64 { return uint64(len(v.predictions)) }

func (v *Vault) prediction(id uint64) (*prediction, error) {
	if id >= uint64(len(v.predictions)) {
		return nil, domain.ErrPredictionNotFound
	}
	return v.predictions[id], nil
}
