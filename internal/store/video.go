package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vidtube/apiserver/types"
)

// VideoRepository handles persistence for videos. The apiserver only
// needs enough of it to feed the watch-history join and seed data.
type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) Get(ctx context.Context, id int64) (types.Video, error) {
	const query = `
		SELECT id, owner_id, video_file_url, thumbnail_url, title, description, duration, views, is_published, created_at
		FROM videos
		WHERE id = $1`
	var video types.Video
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&video.ID,
		&video.OwnerID,
		&video.VideoFileURL,
		&video.ThumbnailURL,
		&video.Title,
		&video.Description,
		&video.Duration,
		&video.Views,
		&video.IsPublished,
		&video.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Video{}, ErrNotFound
		}
		return types.Video{}, err
	}
	return video, nil
}

func (r *VideoRepository) Create(ctx context.Context, video types.Video) (types.Video, error) {
	video.CreatedAt = time.Now()

	const query = `
		INSERT INTO videos (owner_id, video_file_url, thumbnail_url, title, description, duration, views, is_published, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		video.OwnerID,
		video.VideoFileURL,
		video.ThumbnailURL,
		video.Title,
		video.Description,
		video.Duration,
		video.Views,
		video.IsPublished,
		video.CreatedAt,
	).Scan(&video.ID); err != nil {
		return types.Video{}, mapError(err)
	}
	return video, nil
}
