package models

import "time"

// ParticipantRecordKey is the fixed name of the session storage record.
const ParticipantRecordKey = "participantData"

// ParticipantRecord is written once when the participant leaves the lobby
// and read once on room entry.
type ParticipantRecord struct {
	Token                 string     `json:"token" validate:"required"`
	ParticipantIdentifier string     `json:"participantIdentifier" validate:"required"`
	ParticipantType       string     `json:"participantType"`
	DisplayName           string     `json:"displayName"`
	RoomName              string     `json:"roomName" validate:"required"`
	MeetingStartTime      *time.Time `json:"meetingStartTime,omitempty"`
	MeetingEndTime        *time.Time `json:"meetingEndTime,omitempty"`
	Timestamp             int64      `json:"timestamp"`
}
