package models

import "github.com/golang-jwt/jwt/v5"

// AccessClaims is the payload of a meeting access grant. The grant is
// minted by the booking backend and signed with RS256.
type AccessClaims struct {
	RoomName      string `json:"roomName"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	IsOwner       bool   `json:"isOwner"`
	jwt.RegisteredClaims
}

type RejectReason = string

const (
	RejectMalformedToken = RejectReason("MalformedToken")
	RejectBadSignature   = RejectReason("BadSignature")
	RejectExpired        = RejectReason("Expired")
	RejectNotYetValid    = RejectReason("NotYetValid")
	RejectRoomMismatch   = RejectReason("RoomMismatch")
	RejectKeyUnavailable = RejectReason("KeyUnavailable")
	RejectNoAuthProvided = RejectReason("noAuthProvided")
)

// Reasons the relay reports in error messages that are not about the grant.
const (
	ErrorRoomFull       = "roomFull"
	ErrorInvalidMessage = "invalidMessage"
	ErrorNotPermitted   = "notPermitted"
)

// IsAuthReason reports whether an error reason sent by the relay means the
// grant was refused. Such errors are fatal for the connection.
func IsAuthReason(reason string) bool {
	switch reason {
	case RejectMalformedToken, RejectBadSignature, RejectExpired,
		RejectNotYetValid, RejectRoomMismatch, RejectKeyUnavailable, RejectNoAuthProvided:
		return true
	default:
		return false
	}
}
