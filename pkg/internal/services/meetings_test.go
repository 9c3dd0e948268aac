package services

import (
	"testing"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunSource(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=meet"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestMeetingRowIsUpserted(t *testing.T) {
	db := dryRunSource(t)

	// A join that lands before the start hook creates the row and leaves it
	// for the start hook to fill in.
	stmt := db.Clauses(meetingOnce).Create(&models.Meeting{Uuid: "m-1", RoomName: "room-1"}).Statement
	assert.Contains(t, stmt.SQL.String(), `ON CONFLICT ("uuid") DO NOTHING`)

	stmt = db.Clauses(meetingStart).Create(&models.Meeting{Uuid: "m-1", RoomName: "room-1"}).Statement
	assert.Contains(t, stmt.SQL.String(), `ON CONFLICT ("uuid") DO UPDATE SET "room_name"="excluded"."room_name"`)
	assert.Contains(t, stmt.SQL.String(), `"metadata"="excluded"."metadata"`)
}
