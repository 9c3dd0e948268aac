package services

import (
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

// DoSilentConnectionSweep evicts relay connections that stopped sending
// heartbeats without saying goodbye.
func DoSilentConnectionSweep() {
	if R == nil {
		return
	}
	if count := R.Sweep(); count > 0 {
		log.Debug().Int("evicted", count).Msg("Silent connection sweep accomplished.")
	}
}

// DoAutoDatabaseCleanup closes meetings left open by a crashed relay and
// purges soft-deleted rows.
func DoAutoDatabaseCleanup() {
	deadline := time.Now().Add(-60 * time.Minute)
	log.Debug().Time("deadline", deadline).Msg("Now cleaning up entire database...")

	var count int64

	// A meeting the relay no longer holds cannot still be running.
	var open []models.Meeting
	if err := database.C.Where("ended_at IS NULL AND started_at < ?", deadline).Find(&open).Error; err == nil {
		for _, meeting := range open {
			if R != nil {
				if state, ok := R.Snapshot(meeting.RoomName); ok && state.MeetingID == meeting.Uuid {
					continue
				}
			}
			if _, err := EndMeeting(meeting.Uuid, meeting.Peak); err != nil {
				log.Error().Err(err).Str("meeting", meeting.Uuid).Msg("An error occurred when closing stale meeting...")
				continue
			}
			count++
		}
	}

	for _, model := range database.AutoMaintainRange {
		tx := database.C.Unscoped().Delete(model, "deleted_at <= ?", deadline)
		if tx.Error != nil {
			log.Error().Err(tx.Error).Msg("An error occurred when running database cleanup...")
		}
		count += tx.RowsAffected
	}

	log.Debug().Int64("affected", count).Msg("Clean up entire database accomplished.")
}
