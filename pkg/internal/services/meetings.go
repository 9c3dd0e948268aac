package services

import (
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// The relay runs join hooks for a second connection while the first one's
// start hook may still be writing, so both sides upsert the meeting row.
var (
	meetingOnce = clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoNothing: true,
	}
	meetingStart = clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"room_name", "metadata"}),
	}
)

func GetMeeting(uuid string) (models.Meeting, error) {
	var meeting models.Meeting
	if err := database.C.
		Where(models.Meeting{Uuid: uuid}).
		Preload("Attendances").
		First(&meeting).Error; err != nil {
		return meeting, err
	} else {
		return meeting, nil
	}
}

func ListMeeting(room string, take, offset int) ([]models.Meeting, error) {
	if take > 100 {
		take = 100
	}

	var meetings []models.Meeting
	if err := database.C.
		Where(models.Meeting{RoomName: room}).
		Limit(take).
		Offset(offset).
		Order("started_at DESC").
		Find(&meetings).Error; err != nil {
		return meetings, err
	} else {
		return meetings, nil
	}
}

func NewMeeting(room, uuid string, metadata map[string]any) (models.Meeting, error) {
	meeting := models.Meeting{
		Uuid:      uuid,
		RoomName:  room,
		StartedAt: time.Now(),
		Metadata:  datatypes.JSONMap(metadata),
	}
	if err := database.C.Clauses(meetingStart).Create(&meeting).Error; err != nil {
		return meeting, err
	}
	return GetMeeting(uuid)
}

func ensureMeeting(room, uuid string) (models.Meeting, error) {
	meeting := models.Meeting{
		Uuid:      uuid,
		RoomName:  room,
		StartedAt: time.Now(),
		Metadata:  datatypes.JSONMap{},
	}
	if err := database.C.Clauses(meetingOnce).Create(&meeting).Error; err != nil {
		return meeting, err
	}
	return GetMeeting(uuid)
}

func EndMeeting(uuid string, peak int) (models.Meeting, error) {
	meeting, err := GetMeeting(uuid)
	if err != nil {
		return meeting, err
	}

	meeting.EndedAt = lo.ToPtr(time.Now())
	meeting.Peak = peak
	if err := database.C.Save(&meeting).Error; err != nil {
		return meeting, err
	}

	// Anyone still marked present was there when the room closed.
	err = database.C.Model(&models.Attendance{}).
		Where("meeting_id = ? AND left_at IS NULL", meeting.ID).
		Updates(map[string]any{"left_at": meeting.EndedAt, "reason": models.AttendanceRoomEnded}).Error
	return meeting, err
}

func NewAttendance(room, uuid string, conn ConnectionInfo) (models.Attendance, error) {
	var attendance models.Attendance
	meeting, err := ensureMeeting(room, uuid)
	if err != nil {
		return attendance, err
	}

	attendance = models.Attendance{
		ConnectionID:  conn.ID,
		ParticipantID: conn.Participant,
		UserID:        conn.UserID,
		DisplayName:   conn.DisplayName,
		IsOwner:       conn.IsOwner,
		JoinedAt:      conn.ConnectedAt,
		MeetingID:     meeting.ID,
	}
	err = database.C.Save(&attendance).Error
	return attendance, err
}

func EndAttendance(uuid string, connID string, reason string) error {
	meeting, err := GetMeeting(uuid)
	if err != nil {
		return err
	}

	return database.C.Model(&models.Attendance{}).
		Where("meeting_id = ? AND connection_id = ? AND left_at IS NULL", meeting.ID, connID).
		Updates(map[string]any{"left_at": time.Now(), "reason": reason}).Error
}
