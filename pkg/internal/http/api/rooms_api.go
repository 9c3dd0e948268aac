package api

import (
	"git.solsynth.dev/hypernet/meet/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
)

func getRoom(c *fiber.Ctx) error {
	name := c.Params("roomName")

	state, ok := services.R.Snapshot(name)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "room is not active")
	}

	media, err := services.ListMediaParticipants(name)
	if err != nil {
		media = nil
	}

	return c.JSON(fiber.Map{
		"room_name":  name,
		"meeting_id": state.MeetingID,
		"state":      state,
		"media":      media,
	})
}

func listRoomMeetings(c *fiber.Ctx) error {
	take := c.QueryInt("take", 10)
	offset := c.QueryInt("offset", 0)

	if meetings, err := services.ListMeeting(c.Params("roomName"), take, offset); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else {
		return c.JSON(meetings)
	}
}

type mediaTokenRequest struct {
	DisplayName string `json:"display_name" validate:"omitempty,max=64"`
}

func exchangeMediaToken(c *fiber.Ctx) error {
	token := exts.GrantFromRequest(c)
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "no access grant provided")
	}

	// The body is optional, a bare POST keeps the name from the grant.
	var data mediaTokenRequest
	if len(c.Body()) > 0 {
		if err := exts.BindAndValidate(c, &data); err != nil {
			return err
		}
	}

	claims, err := services.V.Verify(token, c.Params("roomName"))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, meetkit.RejectionReason(err))
	}
	if data.DisplayName != "" {
		claims.DisplayName = data.DisplayName
	}

	if tk, err := services.EncodeMediaToken(claims); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else {
		return c.JSON(fiber.Map{
			"token":    tk,
			"endpoint": viper.GetString("calling.endpoint"),
		})
	}
}
