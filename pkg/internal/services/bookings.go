package services

import (
	"context"
	"fmt"

	localCache "git.solsynth.dev/hypernet/meet/pkg/internal/cache"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type participantCacheEntry struct {
	Booking *models.BookingInfo
	Meeting *models.MeetingParticipantInfo
}

func GetParticipantCacheKey(participantID string) string {
	return fmt.Sprintf("meet-participant#%s", participantID)
}

// CachedResolver resolves participant links through the backend and keeps
// the result in the shared cache.
type CachedResolver struct {
	backend meetkit.ParticipantResolver
}

func NewCachedResolver(backend meetkit.ParticipantResolver) *CachedResolver {
	return &CachedResolver{backend: backend}
}

func NewBackendResolver() *CachedResolver {
	return NewCachedResolver(meetkit.NewBookingClient(
		viper.GetString("backend.api_url"),
		viper.GetDuration("backend.timeout"),
	))
}

func (v *CachedResolver) ResolveParticipant(ctx context.Context, participantID string) (*meetkit.ParticipantContext, error) {
	if localCache.S != nil {
		marshal := marshaler.New(cache.New[any](localCache.S))
		if val, err := marshal.Get(ctx, GetParticipantCacheKey(participantID), new(participantCacheEntry)); err == nil {
			entry := val.(*participantCacheEntry)
			return meetkit.NewParticipantContext(participantID, entry.Booking, entry.Meeting), nil
		}
	}

	resolved, err := v.backend.ResolveParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	if localCache.S != nil {
		marshal := marshaler.New(cache.New[any](localCache.S))
		if err := marshal.Set(
			ctx,
			GetParticipantCacheKey(participantID),
			participantCacheEntry{resolved.Booking, resolved.Meeting},
			store.WithTags([]string{"meet-participant", fmt.Sprintf("room#%s", resolved.RoomName())}),
		); err != nil {
			log.Debug().Err(err).Str("participant", participantID).Msg("Unable to cache participant.")
		}
	}

	return resolved, nil
}

// InvalidateRoomParticipants drops every cached participant of a room.
func InvalidateRoomParticipants(ctx context.Context, room string) error {
	if localCache.S == nil {
		return nil
	}
	return cache.New[any](localCache.S).Invalidate(ctx, store.WithInvalidateTags([]string{fmt.Sprintf("room#%s", room)}))
}
