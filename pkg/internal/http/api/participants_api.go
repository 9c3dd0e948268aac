package api

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit"
	"github.com/gofiber/fiber/v2"
)

func resolveParticipant(c *fiber.Ctx) (*meetkit.ParticipantContext, error) {
	id := c.Params("participantId")
	resolved, err := services.B.ResolveParticipant(c.Context(), id)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return resolved, nil
}

func windowTimes(window meetkit.Window) fiber.Map {
	out := fiber.Map{"start": nil, "end": nil, "grace_end": nil, "join_start": nil}
	if !window.Start.IsZero() {
		out["start"] = window.Start
		out["join_start"] = meetkit.JoinWindowStart(window.Start)
	}
	if !window.End.IsZero() {
		out["end"] = window.End
		out["grace_end"] = meetkit.GracePeriodEnd(window.End)
	}
	return out
}

func getParticipantGate(c *fiber.Ctx) error {
	resolved, err := resolveParticipant(c)
	if err != nil {
		return err
	}

	now := time.Now()
	gate := meetkit.NewGate(resolved.ParticipantID, staticResolver{resolved}, meetkit.NewMemoryStore())
	if err := gate.Load(c.Context()); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	view := gate.Screen(now)

	if view.Phase == meetkit.PhaseExpired {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"phase":    view.Phase,
			"screen":   view.Screen,
			"redirect": "/api/participants/" + resolved.ParticipantID + "/end",
		})
	}

	return c.JSON(fiber.Map{
		"participant": resolved,
		"room_name":   resolved.RoomName(),
		"window":      windowTimes(resolved.Window),
		"duration":    meetkit.FormatDuration(max(resolved.Window.DurationMinutes(), 0)),
		"phase":       view.Phase,
		"screen":      view.Screen,
		"can_join":    view.CanJoin,
		"countdown":   view.Countdown,
		"message":     view.Message,
	})
}

func getParticipantEnd(c *fiber.Ctx) error {
	resolved, err := resolveParticipant(c)
	if err != nil {
		return err
	}

	end := meetkit.NewEndScreen(resolved.ParticipantID, resolved, time.Now())

	return c.JSON(fiber.Map{
		"participant_id": resolved.ParticipantID,
		"partner_name":   end.PartnerName,
		"booking":        resolved.Booking,
		"can_rejoin":     end.Poll(time.Now()),
		"actions":        end.Actions(),
		"recheck_after":  meetkit.EndScreenRecheck.Seconds(),
	})
}

// staticResolver hands an already resolved participant to a gate.
type staticResolver struct {
	resolved *meetkit.ParticipantContext
}

func (v staticResolver) ResolveParticipant(_ context.Context, _ string) (*meetkit.ParticipantContext, error) {
	return v.resolved, nil
}
