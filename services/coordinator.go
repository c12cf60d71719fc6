package services

import (
	"context"
	"fmt"
	"strings"

	"powerup-economy/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubmitRequest struct {
	PlayerID  string `json:"player_id"`
	TopicID   string `json:"topic_id"`
	RawScore  int64  `json:"raw_score"`
	AttemptID string `json:"attempt_id"`
}

type SubmitResult struct {
	AttemptID       string            `json:"attempt_id"`
	FirstAttempt    bool              `json:"first_attempt"`
	RawScore        int64             `json:"raw_score"`
	FinalScore      int64             `json:"final_score"`
	TokenDelta      int64             `json:"token_delta"`
	ConsumedEffects []string          `json:"consumed_effects,omitempty"`
	Sabotage        models.Resolution `json:"sabotage,omitempty"`
	Balance         Balance           `json:"balance"`
}

// submission walks received -> validated -> resolved -> committed, or
// received -> rejected. Both end states are terminal.
type submission struct {
	attemptID string
	state     models.AttemptState
}

var submissionTransitions = map[models.AttemptState][]models.AttemptState{
	models.AttemptReceived:  {models.AttemptValidated, models.AttemptRejected},
	models.AttemptValidated: {models.AttemptResolved},
	models.AttemptResolved:  {models.AttemptCommitted},
}

func (s *submission) advance(to models.AttemptState) error {
	for _, next := range submissionTransitions[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("submission %s: illegal transition %s -> %s", s.attemptID, s.state, to)
}

// Coordinator turns a quiz attempt into ledger and inventory changes,
// resolving effects exactly once per attempt id.
type Coordinator struct {
	store     *Store
	ledger    *LedgerService
	inventory *InventoryService
	targeting *TargetingRegistry
	resolver  Resolver
	locks     *PlayerLocks
	notifier  *Notifier
	clock     clockwork.Clock
	log       *zap.Logger

	// beforeCommit runs inside the transaction just before the attempt row
	// is written. Tests use it to inject failures.
	beforeCommit func(tx *gorm.DB) error
}

func NewCoordinator(store *Store, ledger *LedgerService, inventory *InventoryService, targeting *TargetingRegistry,
	resolver Resolver, locks *PlayerLocks, notifier *Notifier, clock clockwork.Clock, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		ledger:    ledger,
		inventory: inventory,
		targeting: targeting,
		resolver:  resolver,
		locks:     locks,
		notifier:  notifier,
		clock:     clock,
		log:       logger.Named("coordinator"),
	}
}

// Submit scores one attempt. A second submission with the same attempt id
// fails with DuplicateSubmission and changes nothing.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.TopicID = strings.TrimSpace(req.TopicID)
	req.AttemptID = strings.TrimSpace(req.AttemptID)
	if req.PlayerID == "" || req.TopicID == "" || req.AttemptID == "" {
		return nil, newError(CodeInvalidArgument, "player, topic and attempt id are required")
	}
	if err := c.resolver.CheckRawScore(req.RawScore); err != nil {
		return nil, err
	}

	unlock, err := c.locks.Lock(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		result  SubmitResult
		entries []models.LedgerEntry
		sub     *submission
	)
	err = c.store.Atomically(ctx, "coordinator.submit", func(tx *gorm.DB) error {
		// Fresh state per try; a retried transaction starts over.
		sub = &submission{attemptID: req.AttemptID, state: models.AttemptReceived}
		entries = entries[:0]
		result = SubmitResult{AttemptID: req.AttemptID, RawScore: req.RawScore}

		player, err := lockPlayer(tx, req.PlayerID)
		if err != nil {
			return err
		}

		var dup int64
		if err := tx.Model(&models.QuizAttempt{}).Where("id = ?", req.AttemptID).Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			_ = sub.advance(models.AttemptRejected)
			return newError(CodeDuplicateSubmission, "attempt %s already submitted", req.AttemptID)
		}

		var prior int64
		if err := tx.Model(&models.QuizAttempt{}).
			Where("player_id = ? AND topic_id = ?", req.PlayerID, req.TopicID).
			Count(&prior).Error; err != nil {
			return err
		}
		attempt := models.QuizAttempt{
			ID:           req.AttemptID,
			PlayerID:     req.PlayerID,
			TopicID:      req.TopicID,
			RawScore:     req.RawScore,
			FirstAttempt: prior == 0,
			CreatedAt:    c.clock.Now(),
		}
		if err := sub.advance(models.AttemptValidated); err != nil {
			return err
		}

		var (
			active   []models.PowerUpInstance
			incoming *models.PowerUpInstance
		)
		if attempt.FirstAttempt {
			if active, err = activeEffects(tx, req.PlayerID, true); err != nil {
				return err
			}
			if incoming, err = c.targeting.PendingAgainst(tx, req.PlayerID); err != nil {
				return err
			}
		}
		res, err := c.resolver.Resolve(attempt, active, incoming)
		if err != nil {
			return err
		}
		if err := sub.advance(models.AttemptResolved); err != nil {
			return err
		}

		balance := Balance{Points: player.Points, Tokens: player.Tokens}
		if res.FinalScore > 0 {
			e, err := c.ledger.RecordDelta(tx, req.PlayerID, models.CurrencyPoints, res.FinalScore, models.ReasonQuizReward, req.AttemptID)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			balance.Points = e.BalanceAfter
		}
		if res.TokenDelta > 0 {
			e, err := c.ledger.RecordDelta(tx, req.PlayerID, models.CurrencyTokens, res.TokenDelta, models.ReasonQuizReward, req.AttemptID)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			balance.Tokens = e.BalanceAfter
		}
		for i := range res.Consumed {
			if err := c.inventory.Consume(tx, &res.Consumed[i]); err != nil {
				return err
			}
			result.ConsumedEffects = append(result.ConsumedEffects, res.Consumed[i].ID)
		}
		if res.Sabotage != nil {
			if err := c.targeting.Resolve(tx, res.Sabotage, res.SabotageOutcome, req.AttemptID); err != nil {
				return err
			}
			result.Sabotage = res.SabotageOutcome
		}

		if c.beforeCommit != nil {
			if err := c.beforeCommit(tx); err != nil {
				return err
			}
		}

		attempt.FinalScore = res.FinalScore
		attempt.TokenDelta = res.TokenDelta
		attempt.State = models.AttemptCommitted
		if err := tx.Create(&attempt).Error; err != nil {
			return err
		}
		if err := sub.advance(models.AttemptCommitted); err != nil {
			return err
		}

		result.FirstAttempt = attempt.FirstAttempt
		result.FinalScore = res.FinalScore
		result.TokenDelta = res.TokenDelta
		result.Balance = balance
		return nil
	})
	if err != nil {
		state := models.AttemptRejected
		if sub != nil && sub.state != models.AttemptReceived {
			state = sub.state
		}
		c.log.Info("📝 submission not committed",
			zap.String("player_id", req.PlayerID), zap.String("attempt_id", req.AttemptID),
			zap.String("reached", string(state)), zap.Error(err))
		return nil, err
	}

	c.log.Info("✅ submission committed",
		zap.String("player_id", req.PlayerID), zap.String("topic_id", req.TopicID),
		zap.String("attempt_id", req.AttemptID), zap.Bool("first_attempt", result.FirstAttempt),
		zap.Int64("final_score", result.FinalScore), zap.Int64("token_delta", result.TokenDelta),
		zap.String("sabotage", string(result.Sabotage)))
	c.notifier.PublishEntries(entries)
	return &result, nil
}
