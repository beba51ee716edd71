package types

// Subscription is an edge from a subscriber to a channel; both sides
// reference users. The pair is unique.
type Subscription struct {
	ID           int64 `db:"id"`
	SubscriberID int64 `db:"subscriber_id"`
	ChannelID    int64 `db:"channel_id"`
}

// ChannelProfile is the public aggregate view of a user's channel.
type ChannelProfile struct {
	Username        string `json:"username" db:"username"`
	Email           string `json:"email" db:"email"`
	FullName        string `json:"fullName" db:"full_name"`
	Avatar          string `json:"avatar" db:"avatar_url"`
	CoverImage      string `json:"coverImage,omitempty" db:"cover_image_url"`
	SubscriberCount int64  `json:"subscribersCount" db:"subscriber_count"`
	FollowingCount  int64  `json:"channelsSubscribedToCount" db:"following_count"`

	// IsSubscribed reports whether the requesting user has an edge to
	// this channel.
	IsSubscribed bool `json:"isSubscribed" db:"is_subscribed"`
}
