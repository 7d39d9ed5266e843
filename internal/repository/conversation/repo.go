// Package conversation persists per-session turn logs as append-only
// lists so history reads return turns in chronological order.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/omnisource/internal/db"
	"github.com/kailas-cloud/omnisource/internal/domain"
)

// store is the consumer interface for conversation logs (ISP).
type store interface {
	RPush(ctx context.Context, key string, value []byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
	LSet(ctx context.Context, key string, index int64, value []byte) error
}

// Repo implements usecase/orchestrator.Conversations.
type Repo struct {
	store  store
	prefix string
}

// New creates a conversation repository. Keys are namespaced by prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Append adds a completed turn to the end of the session log.
// A single RPUSH makes the append atomic: the turn is either fully
// visible to later reads or not present at all.
func (r *Repo) Append(ctx context.Context, sessionID string, turn *domain.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := r.sessionKey(sessionID)
	if err := r.store.RPush(ctx, key, data); err != nil {
		return fmt.Errorf("rpush %s: %w: %w", key, domain.ErrConversationStore, err)
	}
	return nil
}

// History returns up to limit most recent turns in chronological order.
// A missing session is an empty history, not an error.
func (r *Repo) History(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 20
	}

	key := r.sessionKey(sessionID)
	raw, err := r.store.LRange(ctx, key, int64(-limit), -1)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lrange %s: %w: %w", key, domain.ErrConversationStore, err)
	}

	turns := make([]domain.Turn, 0, len(raw))
	for _, data := range raw {
		var turn domain.Turn
		if err := json.Unmarshal(data, &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn in %s: %w: %w", key, domain.ErrConversationStore, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// RecordFeedback sets the feedback field on the identified turn in place.
// It returns the rating the turn held before, if any, so resubmissions can
// reconcile the aggregate counters instead of double-counting.
func (r *Repo) RecordFeedback(ctx context.Context, sessionID, turnID string, feedback int) (*int, error) {
	key := r.sessionKey(sessionID)
	raw, err := r.store.LRange(ctx, key, 0, -1)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrTurnNotFound
		}
		return nil, fmt.Errorf("lrange %s: %w: %w", key, domain.ErrConversationStore, err)
	}

	for i, data := range raw {
		var turn domain.Turn
		if err := json.Unmarshal(data, &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn in %s: %w: %w", key, domain.ErrConversationStore, err)
		}
		if turn.ID != turnID {
			continue
		}

		previous := turn.Feedback
		turn.Feedback = &feedback
		updated, err := json.Marshal(&turn)
		if err != nil {
			return nil, fmt.Errorf("marshal turn: %w", err)
		}
		if err := r.store.LSet(ctx, key, int64(i), updated); err != nil {
			return nil, fmt.Errorf("lset %s[%d]: %w: %w", key, i, domain.ErrConversationStore, err)
		}
		return previous, nil
	}
	return nil, domain.ErrTurnNotFound
}

// Length returns the number of turns stored for a session.
func (r *Repo) Length(ctx context.Context, sessionID string) (int64, error) {
	key := r.sessionKey(sessionID)
	n, err := r.store.LLen(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w: %w", key, domain.ErrConversationStore, err)
	}
	return n, nil
}

func (r *Repo) sessionKey(sessionID string) string {
	return fmt.Sprintf("%sconv:%s", r.prefix, sessionID)
}
