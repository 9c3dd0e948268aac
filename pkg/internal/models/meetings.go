package models

import (
	"time"

	"gorm.io/datatypes"
)

// Meeting is one stretch of time a room had at least one connection.
type Meeting struct {
	BaseModel

	Uuid      string     `json:"uuid" gorm:"uniqueIndex"`
	RoomName  string     `json:"room_name" gorm:"index"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	// Peak is the highest number of simultaneous connections.
	Peak     int               `json:"peak"`
	Metadata datatypes.JSONMap `json:"metadata"`

	Attendances []Attendance `json:"attendances,omitempty"`
}

type AttendanceLeftReason = string

const (
	AttendanceLeft      = AttendanceLeftReason("userLeft")
	AttendanceClosed    = AttendanceLeftReason("closed")
	AttendanceTimedOut  = AttendanceLeftReason("timedOut")
	AttendanceRoomEnded = AttendanceLeftReason("roomEnded")
	AttendanceReplaced  = AttendanceLeftReason("replaced")
)

type Attendance struct {
	BaseModel

	ConnectionID  string               `json:"connection_id" gorm:"index"`
	ParticipantID string               `json:"participant_id"`
	UserID        string               `json:"user_id"`
	DisplayName   string               `json:"display_name"`
	IsOwner       bool                 `json:"is_owner"`
	JoinedAt      time.Time            `json:"joined_at"`
	LeftAt        *time.Time           `json:"left_at"`
	Reason        AttendanceLeftReason `json:"reason"`
	MeetingID     uint                 `json:"meeting_id"`
}
