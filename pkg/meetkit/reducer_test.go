package meetkit

import (
	"testing"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/stretchr/testify/assert"
)

func roomOf(users ...models.Participant) models.RoomState {
	return models.RoomState{MeetingID: "m-1", Users: users}
}

func TestRoomViewSnapshot(t *testing.T) {
	view := NewRoomView("self")
	_, ok := view.Self()
	assert.False(t, ok)

	state := roomOf(
		models.Participant{ID: "b", Name: "Bea", Joined: true},
		models.Participant{ID: "self", Name: "Me", Joined: true},
		models.Participant{ID: "c", Name: "Cal", Joined: false},
		models.Participant{ID: "a", Name: "Ana", Joined: true},
	)
	assert.True(t, view.ApplySnapshot(state))
	assert.False(t, view.ApplySnapshot(state))

	self, ok := view.Self()
	assert.True(t, ok)
	assert.Equal(t, "Me", self.Name)

	others := view.Others()
	assert.Equal(t, []string{"b", "a"}, []string{others[0].ID, others[1].ID})
	assert.Len(t, others, 2)

	assert.True(t, view.ApplySnapshot(roomOf(models.Participant{ID: "self", Joined: true})))
	assert.Empty(t, view.Others())
}

func TestRoomViewReadersGetCopies(t *testing.T) {
	view := NewRoomView("self")
	view.ApplySnapshot(roomOf(models.Participant{ID: "a", Name: "Ana", Joined: true}))

	state := view.State()
	state.Users[0].Name = "changed"
	assert.Equal(t, "Ana", view.State().Users[0].Name)
}

func TestRoomViewApply(t *testing.T) {
	view := NewRoomView("self")
	assert.False(t, view.Apply(models.RoomStateMessage{}))
	assert.NotNil(t, view.State().Users)

	assert.True(t, view.Apply(models.ChatMessageEvent{Message: models.ChatMessage{ID: "1", Message: "hi"}}))
	assert.True(t, view.Apply(models.ChatMessageEvent{Message: models.ChatMessage{ID: "2", Message: "hi"}}))
	assert.Len(t, view.ChatLog(), 2)

	assert.False(t, view.Apply(models.PongMessage{}))
	assert.False(t, view.Apply(models.MuteMicCommand{}))
}
