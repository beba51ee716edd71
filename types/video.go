package types

import "time"

// Video represents an uploaded video record. The apiserver only reads
// videos to resolve watch-history entries; upload and transcoding are
// handled elsewhere.
type Video struct {
	// ID is the unique identifier of the video.
	ID int64 `json:"id" db:"id"`

	// OwnerID references the user who owns the video.
	OwnerID int64 `json:"-" db:"owner_id"`

	// VideoFileURL is the object-storage URL of the video file.
	VideoFileURL string `json:"videoFile" db:"video_file_url"`

	// ThumbnailURL is the object-storage URL of the thumbnail image.
	ThumbnailURL string `json:"thumbnail" db:"thumbnail_url"`

	// Title is the display title of the video.
	Title string `json:"title" db:"title"`

	// Description is the free-form description of the video.
	Description string `json:"description" db:"description"`

	// Duration is the length of the video in seconds.
	Duration float64 `json:"duration" db:"duration"`

	// Views is the number of times the video has been watched.
	Views int64 `json:"views" db:"views"`

	// IsPublished reports whether the video is publicly visible.
	IsPublished bool `json:"isPublished" db:"is_published"`

	// CreatedAt is the timestamp when the video record was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// WatchEntry is one resolved entry of a user's watch history: the full
// video record plus the reduced owner projection.
type WatchEntry struct {
	Video
	Owner Owner `json:"owner"`
}
