package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vidtube/apiserver/types"
)

// ChannelRepository runs the read-model aggregation queries: the public
// channel profile and the resolved watch history.
type ChannelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// GetProfile builds the public profile of the channel owned by
// username, as seen by viewerID. Subscriber count joins edges pointing
// at the channel, following count joins edges leaving it, and
// is_subscribed tests the viewer's own edge.
func (r *ChannelRepository) GetProfile(ctx context.Context, username string, viewerID int64) (types.ChannelProfile, error) {
	const query = `
		SELECT u.username,
			u.email,
			u.full_name,
			u.avatar_url,
			u.cover_image_url,
			(SELECT COUNT(1) FROM subscriptions s WHERE s.channel_id = u.id) AS subscriber_count,
			(SELECT COUNT(1) FROM subscriptions s WHERE s.subscriber_id = u.id) AS following_count,
			EXISTS (
				SELECT 1 FROM subscriptions s
				WHERE s.channel_id = u.id AND s.subscriber_id = $2
			) AS is_subscribed
		FROM users u
		WHERE u.username = $1`

	var profile types.ChannelProfile
	err := r.db.QueryRowContext(ctx, query, username, viewerID).Scan(
		&profile.Username,
		&profile.Email,
		&profile.FullName,
		&profile.Avatar,
		&profile.CoverImage,
		&profile.SubscriberCount,
		&profile.FollowingCount,
		&profile.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ChannelProfile{}, ErrNotFound
		}
		return types.ChannelProfile{}, err
	}
	return profile, nil
}

// ListWatchHistory resolves the user's watch history in stored order,
// each entry carrying the full video and its owner's reduced
// projection. limit <= 0 returns the whole sequence.
func (r *ChannelRepository) ListWatchHistory(ctx context.Context, userID int64, offset, limit int) ([]types.WatchEntry, error) {
	query := `
		SELECT v.id, v.owner_id, v.video_file_url, v.thumbnail_url, v.title, v.description,
			v.duration, v.views, v.is_published, v.created_at,
			o.full_name, o.username, o.avatar_url
		FROM watch_history wh
		JOIN videos v ON v.id = wh.video_id
		JOIN users o ON o.id = v.owner_id
		WHERE wh.user_id = $1
		ORDER BY wh.position`

	args := []any{userID}
	if limit > 0 {
		if offset < 0 {
			offset = 0
		}
		query += ` OFFSET $2 LIMIT $3`
		args = append(args, offset, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.WatchEntry, 0)
	for rows.Next() {
		var entry types.WatchEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.OwnerID,
			&entry.VideoFileURL,
			&entry.ThumbnailURL,
			&entry.Title,
			&entry.Description,
			&entry.Duration,
			&entry.Views,
			&entry.IsPublished,
			&entry.CreatedAt,
			&entry.Owner.FullName,
			&entry.Owner.Username,
			&entry.Owner.Avatar,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// AddWatchHistory appends a video to the end of the user's watch
// history sequence.
func (r *ChannelRepository) AddWatchHistory(ctx context.Context, userID, videoID int64) error {
	const query = `
		INSERT INTO watch_history (user_id, video_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1
		FROM watch_history
		WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, videoID)
	return mapError(err)
}
