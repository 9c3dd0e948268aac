package services

import (
	"context"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/spf13/viper"
)

var Lk *lksdk.RoomServiceClient

func SetupLiveKit() {
	if viper.GetString("calling.endpoint") == "" {
		return
	}

	host := "https://" + viper.GetString("calling.endpoint")

	Lk = lksdk.NewRoomServiceClient(
		host,
		viper.GetString("calling.api_key"),
		viper.GetString("calling.api_secret"),
	)
}

// CreateMediaRoom opens the SFU room that carries a meeting's media.
func CreateMediaRoom(room string) error {
	if Lk == nil {
		return nil
	}

	_, err := Lk.CreateRoom(context.Background(), &livekit.CreateRoomRequest{
		Name:            room,
		EmptyTimeout:    viper.GetUint32("calling.empty_timeout_duration"),
		MaxParticipants: viper.GetUint32("relay.max_participants"),
	})
	if err != nil {
		return fmt.Errorf("remote livekit error: %v", err)
	}
	return nil
}

func DeleteMediaRoom(room string) error {
	if Lk == nil {
		return nil
	}

	_, err := Lk.DeleteRoom(context.Background(), &livekit.DeleteRoomRequest{
		Room: room,
	})
	return err
}

func RemoveMediaParticipant(room, identity string) error {
	if Lk == nil {
		return nil
	}

	_, err := Lk.RemoveParticipant(context.Background(), &livekit.RoomParticipantIdentity{
		Room:     room,
		Identity: identity,
	})
	return err
}

func ListMediaParticipants(room string) ([]*livekit.ParticipantInfo, error) {
	if Lk == nil {
		return nil, nil
	}

	res, err := Lk.ListParticipants(context.Background(), &livekit.ListParticipantsRequest{
		Room: room,
	})
	if err != nil {
		return nil, err
	}
	return res.Participants, nil
}

// EncodeMediaToken exchanges a verified access grant for SFU credentials.
// Room owners get admin rights over the media room.
func EncodeMediaToken(claims *models.AccessClaims) (string, error) {
	grant := &auth.VideoGrant{
		Room:      claims.RoomName,
		RoomJoin:  true,
		RoomAdmin: claims.IsOwner,
	}

	metadata, _ := jsoniter.Marshal(map[string]any{
		"participant_id": claims.ParticipantID,
		"user_id":        claims.UserID,
		"is_owner":       claims.IsOwner,
	})

	duration := time.Second * time.Duration(viper.GetInt("calling.token_duration"))
	tk := auth.NewAccessToken(viper.GetString("calling.api_key"), viper.GetString("calling.api_secret"))
	tk.AddGrant(grant).
		SetIdentity(claims.ParticipantID).
		SetName(claims.DisplayName).
		SetMetadata(string(metadata)).
		SetValidFor(duration)

	return tk.ToJWT()
}
