package meetkit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var validation = validator.New(validator.WithRequiredStructEnabled())

// SessionStore keeps the single participant record that carries the grant
// from the lobby into the room.
type SessionStore interface {
	Save(record models.ParticipantRecord) error
	// Load returns false when no record exists, which means the participant
	// never left the lobby.
	Load() (models.ParticipantRecord, bool, error)
	Clear() error
}

type MemoryStore struct {
	mu     sync.Mutex
	record *models.ParticipantRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (v *MemoryStore) Save(record models.ParticipantRecord) error {
	if err := validation.Struct(record); err != nil {
		return fmt.Errorf("invalid participant record: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record = &record
	return nil
}

func (v *MemoryStore) Load() (models.ParticipantRecord, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.record == nil {
		return models.ParticipantRecord{}, false, nil
	}
	return *v.record, true, nil
}

func (v *MemoryStore) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record = nil
	return nil
}

// FileStore persists the record as <dir>/participantData.json so that the
// terminal client survives a restart the way a browser tab survives a
// reload.
type FileStore struct {
	path string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, models.ParticipantRecordKey+".json")}
}

func (v *FileStore) Save(record models.ParticipantRecord) error {
	if err := validation.Struct(record); err != nil {
		return fmt.Errorf("invalid participant record: %w", err)
	}
	raw, err := jsoniter.Marshal(record)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return err
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, v.path)
}

func (v *FileStore) Load() (models.ParticipantRecord, bool, error) {
	var record models.ParticipantRecord
	raw, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return record, false, nil
	} else if err != nil {
		return record, false, err
	}
	// A record that cannot be read is the same as no record.
	if err := jsoniter.Unmarshal(raw, &record); err != nil {
		return models.ParticipantRecord{}, false, nil
	}
	return record, true, nil
}

func (v *FileStore) Clear() error {
	if err := os.Remove(v.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
