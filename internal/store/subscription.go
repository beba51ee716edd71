package store

import (
	"context"
	"database/sql"
	"errors"
)

// SubscriptionRepository handles persistence for subscription edges.
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Subscribe creates an edge from subscriber to channel. Subscribing to
// an already subscribed channel is a no-op.
func (r *SubscriptionRepository) Subscribe(ctx context.Context, subscriberID, channelID int64) error {
	const query = `
		INSERT INTO subscriptions (subscriber_id, channel_id)
		VALUES ($1, $2)
		ON CONFLICT (subscriber_id, channel_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, subscriberID, channelID)
	return mapError(err)
}

// Unsubscribe removes the edge from subscriber to channel.
func (r *SubscriptionRepository) Unsubscribe(ctx context.Context, subscriberID, channelID int64) error {
	const query = `DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`
	result, err := r.db.ExecContext(ctx, query, subscriberID, channelID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsSubscribed reports whether an edge from subscriber to channel exists.
func (r *SubscriptionRepository) IsSubscribed(ctx context.Context, subscriberID, channelID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, subscriberID, channelID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}
