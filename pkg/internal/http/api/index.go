package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func MapAPIs(app *fiber.App, baseURL string) {
	api := app.Group(baseURL).Name("API")
	{
		participants := api.Group("/participants/:participantId").Name("Participants API")
		{
			participants.Get("/", getParticipantGate)
			participants.Get("/end", getParticipantEnd)
		}

		rooms := api.Group("/rooms/:roomName").Name("Rooms API")
		{
			rooms.Get("/", getRoom)
			rooms.Get("/meetings", listRoomMeetings)
			rooms.Post("/media-token", exchangeMediaToken)
		}
	}
}

func MapRelay(app *fiber.App, baseURL string) {
	app.Use(baseURL+"/rooms/:roomName", relayUpgradeMiddleware)
	app.Get(baseURL+"/rooms/:roomName", websocket.New(relayGateway))
}
