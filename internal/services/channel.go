package services

import (
	"context"

	"github.com/vidtube/apiserver/types"
)

// ChannelRepository defines the aggregation reads for channel views.
type ChannelRepository interface {
	GetProfile(ctx context.Context, username string, viewerID int64) (types.ChannelProfile, error)
	ListWatchHistory(ctx context.Context, userID int64, offset, limit int) ([]types.WatchEntry, error)
	AddWatchHistory(ctx context.Context, userID, videoID int64) error
}

// SubscriptionRepository defines persistence for subscription edges.
type SubscriptionRepository interface {
	Subscribe(ctx context.Context, subscriberID, channelID int64) error
	Unsubscribe(ctx context.Context, subscriberID, channelID int64) error
	IsSubscribed(ctx context.Context, subscriberID, channelID int64) (bool, error)
}

// VideoRepository defines the video reads the channel use-cases need.
type VideoRepository interface {
	Get(ctx context.Context, id int64) (types.Video, error)
}

// ChannelService encapsulates the channel read-model use-cases.
type ChannelService struct {
	repo          ChannelRepository
	subscriptions SubscriptionRepository
	videos        VideoRepository
}

func NewChannelService(repo ChannelRepository, subscriptions SubscriptionRepository, videos VideoRepository) *ChannelService {
	return &ChannelService{repo: repo, subscriptions: subscriptions, videos: videos}
}

// Profile builds the public channel profile for username as seen by
// viewerID.
func (s *ChannelService) Profile(ctx context.Context, username string, viewerID int64) (types.ChannelProfile, error) {
	return s.repo.GetProfile(ctx, username, viewerID)
}

// WatchHistory returns the user's resolved watch history in stored
// order. limit <= 0 returns the whole sequence.
func (s *ChannelService) WatchHistory(ctx context.Context, userID int64, offset, limit int) ([]types.WatchEntry, error) {
	return s.repo.ListWatchHistory(ctx, userID, offset, limit)
}

// RecordWatch appends an existing video to the user's watch history.
func (s *ChannelService) RecordWatch(ctx context.Context, userID, videoID int64) error {
	if _, err := s.videos.Get(ctx, videoID); err != nil {
		return err
	}
	return s.repo.AddWatchHistory(ctx, userID, videoID)
}

// ToggleSubscription flips the subscription edge from the subscriber
// to the channel and returns the resulting state.
func (s *ChannelService) ToggleSubscription(ctx context.Context, subscriberID, channelID int64) (bool, error) {
	if subscriberID == channelID {
		return false, validationErrorf("cannot subscribe to your own channel")
	}

	subscribed, err := s.subscriptions.IsSubscribed(ctx, subscriberID, channelID)
	if err != nil {
		return false, err
	}
	if subscribed {
		if err := s.subscriptions.Unsubscribe(ctx, subscriberID, channelID); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := s.subscriptions.Subscribe(ctx, subscriberID, channelID); err != nil {
		return false, err
	}
	return true, nil
}
