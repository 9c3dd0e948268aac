package services

import (
	"git.solsynth.dev/hypernet/meet/pkg/meetkit"
	"github.com/spf13/viper"
)

var (
	// R is the process-wide room relay.
	R *Relay
	// V verifies access grants. Its key is parsed once on first use.
	V *meetkit.Verifier
)

func SetupRelay() {
	V = meetkit.NewVerifier(viper.GetString("security.jwt_public_key"))
	R = NewRelay(V, MeetingRecorder{}, RelayConfig{
		MaxParticipants:  viper.GetInt("relay.max_participants"),
		HeartbeatTimeout: viper.GetDuration("relay.heartbeat_timeout"),
	})
}

// B resolves participant links for the gate API.
var B meetkit.ParticipantResolver

func SetupBookings() {
	B = NewBackendResolver()
}
