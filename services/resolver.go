package services

import (
	"math"
	"slices"

	"powerup-economy/models"
)

// DefaultMaxRawScore caps a quiz score when the Resolver sets no limit.
const DefaultMaxRawScore = 1000

// MultiplierFactor applies when a multiplier instance carries no factor of its own.
const MultiplierFactor = 2

// GambleOutcomes are equally likely token results of one gamble.
var GambleOutcomes = []int64{15, 6, -6, -10}

// RandomSource is satisfied by *math/rand/v2.Rand.
type RandomSource interface {
	IntN(n int) int
}

// Resolution is what one quiz attempt does to balances and effects.
type Resolution struct {
	FinalScore int64
	TokenDelta int64
	// Consumed holds the multiplier and/or shield used up by this attempt.
	Consumed []models.PowerUpInstance
	// Sabotage is the incoming sabotage this attempt resolved, if any.
	Sabotage        *models.PowerUpInstance
	SabotageOutcome models.Resolution
}

// Resolver applies power-up rules to a quiz attempt. It is pure: state
// changes are carried out by the caller from the returned Resolution.
type Resolver struct {
	// TokenDivisor is the number of final points per token earned.
	TokenDivisor int64
	// MaxRawScore is the highest score a client may report; 0 means
	// DefaultMaxRawScore.
	MaxRawScore int64
}

// CheckRawScore rejects scores outside [0, MaxRawScore].
func (r Resolver) CheckRawScore(raw int64) error {
	limit := r.MaxRawScore
	if limit <= 0 {
		limit = DefaultMaxRawScore
	}
	if raw < 0 || raw > limit {
		return newError(CodeInvalidArgument, "raw score %d outside [0, %d]", raw, limit)
	}
	return nil
}

// Resolve applies, in order: non-first attempts earn nothing; the raw score
// becomes points 1:1; an active multiplier scales them and is consumed; an
// incoming sabotage is neutralized by an active shield (consuming it) or
// halves the points. The sabotage is resolved either way.
func (r Resolver) Resolve(attempt models.QuizAttempt, active []models.PowerUpInstance, incoming *models.PowerUpInstance) (Resolution, error) {
	for _, inst := range active {
		if inst.PlayerID != attempt.PlayerID {
			return Resolution{}, newError(CodeInvalidArgument, "power-up %s does not belong to player %s", inst.ID, attempt.PlayerID)
		}
		if inst.Consumed {
			return Resolution{}, newError(CodeAlreadyConsumed, "power-up %s already consumed", inst.ID)
		}
	}
	if incoming != nil {
		if incoming.TargetPlayerID == nil || *incoming.TargetPlayerID != attempt.PlayerID {
			return Resolution{}, newError(CodeInvalidArgument, "sabotage %s does not target player %s", incoming.ID, attempt.PlayerID)
		}
		if !incoming.Armed() || incoming.Consumed {
			return Resolution{}, newError(CodeAlreadyConsumed, "sabotage %s already resolved", incoming.ID)
		}
	}
	if err := r.CheckRawScore(attempt.RawScore); err != nil {
		return Resolution{}, err
	}

	if !attempt.FirstAttempt {
		return Resolution{}, nil
	}

	res := Resolution{FinalScore: attempt.RawScore}

	if m, ok := oldestOfKind(active, models.KindMultiplier); ok {
		factor := m.Factor
		if factor <= 1 {
			factor = MultiplierFactor
		}
		if res.FinalScore > math.MaxInt64/factor {
			return Resolution{}, newError(CodeInvalidArgument, "score %d overflows with factor %d", res.FinalScore, factor)
		}
		res.FinalScore *= factor
		res.Consumed = append(res.Consumed, m)
	}

	if incoming != nil {
		sab := *incoming
		res.Sabotage = &sab
		if shield, ok := oldestOfKind(active, models.KindShield); ok {
			res.SabotageOutcome = models.ResolutionNeutralized
			res.Consumed = append(res.Consumed, shield)
		} else {
			res.SabotageOutcome = models.ResolutionApplied
			res.FinalScore /= 2
		}
	}

	if r.TokenDivisor > 0 {
		res.TokenDelta = res.FinalScore / r.TokenDivisor
	}
	return res, nil
}

// GambleOutcome draws one gamble result.
func GambleOutcome(rng RandomSource) int64 {
	return GambleOutcomes[rng.IntN(len(GambleOutcomes))]
}

func oldestOfKind(insts []models.PowerUpInstance, kind models.PowerUpKind) (models.PowerUpInstance, bool) {
	var matches []models.PowerUpInstance
	for _, inst := range insts {
		if inst.Kind == kind && !inst.Consumed {
			matches = append(matches, inst)
		}
	}
	if len(matches) == 0 {
		return models.PowerUpInstance{}, false
	}
	return slices.MinFunc(matches, func(a, b models.PowerUpInstance) int {
		return a.PurchasedAt.Compare(b.PurchasedAt)
	}), true
}
