package models

// RoomState is the authoritative snapshot of a room, owned by the relay.
// Clients replace their cached copy wholesale on every snapshot.
type RoomState struct {
	MeetingID string        `json:"meetingId,omitempty"`
	Users     []Participant `json:"users"`
	AI        AIState       `json:"ai"`
}

type AIState struct {
	Enabled         bool   `json:"enabled"`
	ControllingUser string `json:"controllingUser,omitempty"`
}

type Participant struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Joined               bool   `json:"joined"`
	RaisedHand           bool   `json:"raisedHand"`
	Speaking             bool   `json:"speaking"`
	TransceiverSessionID string `json:"transceiverSessionId,omitempty"`
	Tracks               Tracks `json:"tracks"`
}

// Tracks holds the media flags a participant broadcasts. Track ids refer to
// the media transport and are opaque here.
type Tracks struct {
	Audio              string `json:"audio,omitempty"`
	Video              string `json:"video,omitempty"`
	Screenshare        string `json:"screenshare,omitempty"`
	AudioEnabled       bool   `json:"audioEnabled"`
	VideoEnabled       bool   `json:"videoEnabled"`
	ScreenShareEnabled bool   `json:"screenShareEnabled"`
}

type ChatMessage struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	FromID  string `json:"fromId"`
	Message string `json:"message"`
}

// Clone returns a deep copy so that readers never share the writer's slices.
func (v RoomState) Clone() RoomState {
	out := v
	if v.Users != nil {
		out.Users = make([]Participant, len(v.Users))
		copy(out.Users, v.Users)
	}
	return out
}
