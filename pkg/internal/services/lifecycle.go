package services

import (
	"context"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

// MeetingRecorder persists meetings, manages their media rooms and publishes
// lifecycle events as the relay reports them.
type MeetingRecorder struct{}

func (MeetingRecorder) RoomStarted(room string, meetingID string) {
	if _, err := NewMeeting(room, meetingID, map[string]any{}); err != nil {
		log.Error().Err(err).Str("room", room).Msg("An error occurred when recording meeting start.")
	}
	if err := CreateMediaRoom(room); err != nil {
		log.Error().Err(err).Str("room", room).Msg("Unable to create media room.")
	}
	PublishRoomEvent(room, RoomEventStarted, map[string]any{"meeting_id": meetingID})
}

func (MeetingRecorder) RoomEnded(room string, meetingID string, peak int) {
	if _, err := EndMeeting(meetingID, peak); err != nil {
		log.Error().Err(err).Str("room", room).Msg("An error occurred when recording meeting end.")
	}
	if err := DeleteMediaRoom(room); err != nil {
		log.Error().Err(err).Str("room", room).Msg("Unable to delete room at livekit side")
	}
	if err := InvalidateRoomParticipants(context.Background(), room); err != nil {
		log.Debug().Err(err).Str("room", room).Msg("Unable to invalidate cached participants.")
	}
	PublishRoomEvent(room, RoomEventEnded, map[string]any{"meeting_id": meetingID, "peak": peak})
}

func (MeetingRecorder) ParticipantJoined(room string, meetingID string, conn ConnectionInfo) {
	if _, err := NewAttendance(room, meetingID, conn); err != nil {
		log.Error().Err(err).Str("room", room).Msg("An error occurred when recording attendance.")
	}
	PublishRoomEvent(room, RoomEventJoined, map[string]any{
		"meeting_id":     meetingID,
		"connection_id":  conn.ID,
		"participant_id": conn.Participant,
	})
}

func (MeetingRecorder) ParticipantLeft(room string, meetingID string, conn ConnectionInfo, reason string) {
	if err := EndAttendance(meetingID, conn.ID, reason); err != nil {
		log.Error().Err(err).Str("room", room).Msg("An error occurred when recording attendance.")
	}

	event := RoomEventLeft
	if reason == models.AttendanceTimedOut {
		event = RoomEventTimedOut
		if err := RemoveMediaParticipant(room, conn.Participant); err != nil {
			log.Debug().Err(err).Str("room", room).Msg("Unable to remove media participant.")
		}
	}
	PublishRoomEvent(room, event, map[string]any{
		"meeting_id":     meetingID,
		"connection_id":  conn.ID,
		"participant_id": conn.Participant,
		"reason":         reason,
	})
}
