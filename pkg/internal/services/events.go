package services

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RoomEvent = string

const (
	RoomEventStarted  = RoomEvent("started")
	RoomEventEnded    = RoomEvent("ended")
	RoomEventJoined   = RoomEvent("joined")
	RoomEventLeft     = RoomEvent("left")
	RoomEventTimedOut = RoomEvent("timedOut")
)

var Nc *nats.Conn

func SetupEvents() error {
	url := viper.GetString("nats.url")
	if url == "" {
		return nil
	}

	var err error
	Nc, err = nats.Connect(url, nats.Name("meet"), nats.MaxReconnects(-1))
	return err
}

func RoomSubject(room string, event RoomEvent) string {
	prefix := viper.GetString("nats.subject_prefix")
	if prefix == "" {
		prefix = "meet"
	}
	return fmt.Sprintf("%s.rooms.%s.%s", prefix, room, event)
}

// PublishRoomEvent emits a lifecycle event. Without a broker it does nothing.
func PublishRoomEvent(room string, event RoomEvent, payload map[string]any) {
	if Nc == nil {
		return
	}

	payload["room"] = room
	payload["event"] = event
	payload["timestamp"] = time.Now().Unix()

	data, err := jsoniter.Marshal(payload)
	if err != nil {
		return
	}
	if err := Nc.Publish(RoomSubject(room, event), data); err != nil {
		log.Warn().Err(err).Str("room", room).Str("event", event).Msg("An error occurred when publishing room event.")
	}
}
