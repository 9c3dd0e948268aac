package models

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnknownVariant is returned by the decoders for a message type this
// build does not know. Callers ignore such messages so that the protocol
// can grow without breaking older peers.
var ErrUnknownVariant = errors.New("unknown message variant")

// Server to client message types.
const (
	ServerRoomState            = "roomState"
	ServerChatMessage          = "chatMessage"
	ServerDirectMessage        = "directMessage"
	ServerMuteMic              = "muteMic"
	ServerError                = "error"
	ServerUserLeftNotification = "userLeftNotification"
	ServerPong                 = "partyserver-pong"
	ServerEncryptionMessage    = "e2eeMlsMessage"
)

// Client to server message types.
const (
	ClientHeartbeat         = "heartbeat"
	ClientUserUpdate        = "userUpdate"
	ClientUserLeft          = "userLeft"
	ClientChatMessage       = "chatMessage"
	ClientDirectMessage     = "directMessage"
	ClientMuteUser          = "muteUser"
	ClientEncryptionMessage = "e2eeMlsMessage"
	ClientPing              = "partyserver-ping"
)

// ServerMessage is the closed set of messages the relay sends. Only the
// types in this file implement it.
type ServerMessage interface {
	Type() string
	Accept(h ServerMessageHandler)
	isServerMessage()
}

// ServerMessageHandler must handle every server message variant. Adding a
// variant adds a method here, so every handler fails to compile until it
// deals with the new variant.
type ServerMessageHandler interface {
	OnRoomState(RoomStateMessage)
	OnChatMessage(ChatMessageEvent)
	OnDirectMessage(DirectMessageEvent)
	OnMuteMic(MuteMicCommand)
	OnError(ErrorMessage)
	OnUserLeftNotification(UserLeftNotification)
	OnPong(PongMessage)
	OnEncryptionMessage(EncryptionMessage)
}

type RoomStateMessage struct{ State RoomState }
type ChatMessageEvent struct{ Message ChatMessage }
type DirectMessageEvent struct{ From, Message string }
type MuteMicCommand struct{}
type ErrorMessage struct{ Error string }
type UserLeftNotification struct{ ID string }
type PongMessage struct{}
type EncryptionMessage struct{ Payload string }

func (RoomStateMessage) Type() string     { return ServerRoomState }
func (ChatMessageEvent) Type() string     { return ServerChatMessage }
func (DirectMessageEvent) Type() string   { return ServerDirectMessage }
func (MuteMicCommand) Type() string       { return ServerMuteMic }
func (ErrorMessage) Type() string         { return ServerError }
func (UserLeftNotification) Type() string { return ServerUserLeftNotification }
func (PongMessage) Type() string          { return ServerPong }
func (EncryptionMessage) Type() string    { return ServerEncryptionMessage }

func (v RoomStateMessage) Accept(h ServerMessageHandler)     { h.OnRoomState(v) }
func (v ChatMessageEvent) Accept(h ServerMessageHandler)     { h.OnChatMessage(v) }
func (v DirectMessageEvent) Accept(h ServerMessageHandler)   { h.OnDirectMessage(v) }
func (v MuteMicCommand) Accept(h ServerMessageHandler)       { h.OnMuteMic(v) }
func (v ErrorMessage) Accept(h ServerMessageHandler)         { h.OnError(v) }
func (v UserLeftNotification) Accept(h ServerMessageHandler) { h.OnUserLeftNotification(v) }
func (v PongMessage) Accept(h ServerMessageHandler)          { h.OnPong(v) }
func (v EncryptionMessage) Accept(h ServerMessageHandler)    { h.OnEncryptionMessage(v) }

func (RoomStateMessage) isServerMessage()     {}
func (ChatMessageEvent) isServerMessage()     {}
func (DirectMessageEvent) isServerMessage()   {}
func (MuteMicCommand) isServerMessage()       {}
func (ErrorMessage) isServerMessage()         {}
func (UserLeftNotification) isServerMessage() {}
func (PongMessage) isServerMessage()          {}
func (EncryptionMessage) isServerMessage()    {}

// ClientMessage is the closed set of messages a participant sends.
type ClientMessage interface {
	Type() string
	Accept(h ClientMessageHandler)
	isClientMessage()
}

type ClientMessageHandler interface {
	OnHeartbeat(HeartbeatMessage)
	OnUserUpdate(UserUpdateMessage)
	OnUserLeft(UserLeftMessage)
	OnChatMessage(ChatMessageRequest)
	OnDirectMessage(DirectMessageRequest)
	OnMuteUser(MuteUserRequest)
	OnEncryptionMessage(EncryptionRequest)
	OnPing(PingMessage)
}

type HeartbeatMessage struct{}
type UserUpdateMessage struct{ User Participant }
type UserLeftMessage struct{}
type ChatMessageRequest struct {
	Message string `validate:"required,max=4096"`
}
type DirectMessageRequest struct {
	To      string `validate:"required"`
	Message string `validate:"required,max=4096"`
}
type MuteUserRequest struct {
	ID string `validate:"required"`
}
type EncryptionRequest struct{ Payload string }
type PingMessage struct{}

func (HeartbeatMessage) Type() string     { return ClientHeartbeat }
func (UserUpdateMessage) Type() string    { return ClientUserUpdate }
func (UserLeftMessage) Type() string      { return ClientUserLeft }
func (ChatMessageRequest) Type() string   { return ClientChatMessage }
func (DirectMessageRequest) Type() string { return ClientDirectMessage }
func (MuteUserRequest) Type() string      { return ClientMuteUser }
func (EncryptionRequest) Type() string    { return ClientEncryptionMessage }
func (PingMessage) Type() string          { return ClientPing }

func (v HeartbeatMessage) Accept(h ClientMessageHandler)     { h.OnHeartbeat(v) }
func (v UserUpdateMessage) Accept(h ClientMessageHandler)    { h.OnUserUpdate(v) }
func (v UserLeftMessage) Accept(h ClientMessageHandler)      { h.OnUserLeft(v) }
func (v ChatMessageRequest) Accept(h ClientMessageHandler)   { h.OnChatMessage(v) }
func (v DirectMessageRequest) Accept(h ClientMessageHandler) { h.OnDirectMessage(v) }
func (v MuteUserRequest) Accept(h ClientMessageHandler)      { h.OnMuteUser(v) }
func (v EncryptionRequest) Accept(h ClientMessageHandler)    { h.OnEncryptionMessage(v) }
func (v PingMessage) Accept(h ClientMessageHandler)          { h.OnPing(v) }

func (HeartbeatMessage) isClientMessage()     {}
func (UserUpdateMessage) isClientMessage()    {}
func (UserLeftMessage) isClientMessage()      {}
func (ChatMessageRequest) isClientMessage()   {}
func (DirectMessageRequest) isClientMessage() {}
func (MuteUserRequest) isClientMessage()      {}
func (EncryptionRequest) isClientMessage()    {}
func (PingMessage) isClientMessage()          {}

type serverEnvelope struct {
	Type    string              `json:"type"`
	State   *RoomState          `json:"state,omitempty"`
	Message jsoniter.RawMessage `json:"message,omitempty"`
	From    string              `json:"from,omitempty"`
	Error   string              `json:"error,omitempty"`
	ID      string              `json:"id,omitempty"`
	Payload string              `json:"payload,omitempty"`
}

type clientEnvelope struct {
	Type    string       `json:"type"`
	User    *Participant `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
	To      string       `json:"to,omitempty"`
	ID      string       `json:"id,omitempty"`
	Payload string       `json:"payload,omitempty"`
}

func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	out := serverEnvelope{Type: msg.Type()}
	switch v := msg.(type) {
	case RoomStateMessage:
		state := v.State
		if state.Users == nil {
			state.Users = []Participant{}
		}
		out.State = &state
	case ChatMessageEvent:
		raw, err := json.Marshal(v.Message)
		if err != nil {
			return nil, err
		}
		out.Message = raw
	case DirectMessageEvent:
		raw, err := json.Marshal(v.Message)
		if err != nil {
			return nil, err
		}
		out.From, out.Message = v.From, raw
	case ErrorMessage:
		out.Error = v.Error
	case UserLeftNotification:
		out.ID = v.ID
	case EncryptionMessage:
		out.Payload = v.Payload
	}
	return json.Marshal(out)
}

// DecodeServerMessage parses one relay frame. Unknown types yield
// ErrUnknownVariant rather than a malformed-frame error.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var in serverEnvelope
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unable to decode server message: %w", err)
	}

	switch in.Type {
	case ServerRoomState:
		if in.State == nil {
			return nil, fmt.Errorf("roomState without state")
		}
		return RoomStateMessage{State: *in.State}, nil
	case ServerChatMessage:
		var message ChatMessage
		if err := json.Unmarshal(in.Message, &message); err != nil {
			return nil, fmt.Errorf("unable to decode chat message: %w", err)
		}
		return ChatMessageEvent{Message: message}, nil
	case ServerDirectMessage:
		var message string
		if len(in.Message) > 0 {
			if err := json.Unmarshal(in.Message, &message); err != nil {
				return nil, fmt.Errorf("unable to decode direct message: %w", err)
			}
		}
		return DirectMessageEvent{From: in.From, Message: message}, nil
	case ServerMuteMic:
		return MuteMicCommand{}, nil
	case ServerError:
		return ErrorMessage{Error: in.Error}, nil
	case ServerUserLeftNotification:
		return UserLeftNotification{ID: in.ID}, nil
	case ServerPong:
		return PongMessage{}, nil
	case ServerEncryptionMessage:
		return EncryptionMessage{Payload: in.Payload}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, in.Type)
	}
}

func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	out := clientEnvelope{Type: msg.Type()}
	switch v := msg.(type) {
	case UserUpdateMessage:
		user := v.User
		out.User = &user
	case ChatMessageRequest:
		out.Message = v.Message
	case DirectMessageRequest:
		out.To, out.Message = v.To, v.Message
	case MuteUserRequest:
		out.ID = v.ID
	case EncryptionRequest:
		out.Payload = v.Payload
	}
	return json.Marshal(out)
}

func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var in clientEnvelope
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("unable to decode client message: %w", err)
	}

	switch in.Type {
	case ClientHeartbeat:
		return HeartbeatMessage{}, nil
	case ClientUserUpdate:
		if in.User == nil {
			return nil, fmt.Errorf("userUpdate without user")
		}
		return UserUpdateMessage{User: *in.User}, nil
	case ClientUserLeft:
		return UserLeftMessage{}, nil
	case ClientChatMessage:
		return ChatMessageRequest{Message: in.Message}, nil
	case ClientDirectMessage:
		return DirectMessageRequest{To: in.To, Message: in.Message}, nil
	case ClientMuteUser:
		return MuteUserRequest{ID: in.ID}, nil
	case ClientEncryptionMessage:
		return EncryptionRequest{Payload: in.Payload}, nil
	case ClientPing:
		return PingMessage{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, in.Type)
	}
}
