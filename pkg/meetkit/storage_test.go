package meetkit

import (
	"os"
	"path/filepath"
	"testing"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() models.ParticipantRecord {
	return models.ParticipantRecord{
		Token:                 "a.b.c",
		ParticipantIdentifier: "p-1",
		ParticipantType:       models.ParticipantTypeClient,
		DisplayName:           "Sam",
		RoomName:              "room-1",
		MeetingStartTime:      lo.ToPtr(testStart),
		MeetingEndTime:        lo.ToPtr(testEnd),
		Timestamp:             testStart.UnixMilli(),
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(sampleRecord()))
	assert.FileExists(t, filepath.Join(dir, "participantData.json"))

	record, ok, err := store.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a.b.c", record.Token)
	assert.True(t, record.MeetingEndTime.Equal(testEnd))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, ok, _ = store.Load()
	assert.False(t, ok)
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "participantData.json"), []byte("{not json"), 0o600))

	_, ok, err := NewFileStore(dir).Load()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStoresRejectIncompleteRecords(t *testing.T) {
	record := sampleRecord()
	record.Token = ""

	assert.Error(t, NewMemoryStore().Save(record))
	assert.Error(t, NewFileStore(t.TempDir()).Save(record))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(sampleRecord()))

	record, ok, err := store.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "room-1", record.RoomName)

	require.NoError(t, store.Clear())
	_, ok, _ = store.Load()
	assert.False(t, ok)
}
