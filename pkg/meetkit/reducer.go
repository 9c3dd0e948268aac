package meetkit

import (
	"reflect"
	"sync"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/samber/lo"
)

// RoomView is the participant's cached projection of the relay's room
// state. The session loop is its only writer; everything else reads copies.
type RoomView struct {
	mu     sync.RWMutex
	selfID string
	state  models.RoomState
	chat   []models.ChatMessage
}

func NewRoomView(selfID string) *RoomView {
	return &RoomView{
		selfID: selfID,
		state:  models.RoomState{Users: []models.Participant{}},
	}
}

// ApplySnapshot replaces the cached state wholesale. It returns false and
// leaves the view untouched when the snapshot equals the cached one.
func (v *RoomView) ApplySnapshot(state models.RoomState) bool {
	if state.Users == nil {
		state.Users = []models.Participant{}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if reflect.DeepEqual(v.state, state) {
		return false
	}
	v.state = state.Clone()
	return true
}

func (v *RoomView) AppendChat(message models.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chat = append(v.chat, message)
}

// Apply folds one server message into the view and reports whether anything
// observable changed. Messages that do not touch the view report false.
func (v *RoomView) Apply(msg models.ServerMessage) bool {
	switch m := msg.(type) {
	case models.RoomStateMessage:
		return v.ApplySnapshot(m.State)
	case models.ChatMessageEvent:
		v.AppendChat(m.Message)
		return true
	default:
		return false
	}
}

func (v *RoomView) SelfID() string {
	return v.selfID
}

// Self is the local participant's own record, if the relay has listed it.
func (v *RoomView) Self() (models.Participant, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lo.Find(v.state.Users, func(item models.Participant) bool {
		return item.ID == v.selfID
	})
}

// Others lists every joined participant except self, in snapshot order.
func (v *RoomView) Others() []models.Participant {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lo.Filter(v.state.Users, func(item models.Participant, _ int) bool {
		return item.ID != v.selfID && item.Joined
	})
}

func (v *RoomView) State() models.RoomState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Clone()
}

func (v *RoomView) ChatLog() []models.ChatMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.ChatMessage, len(v.chat))
	copy(out, v.chat)
	return out
}
