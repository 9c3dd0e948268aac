package meetkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrMeetingNotFound = errors.New("meeting not found for this participant")

// ParticipantContext is everything the gate needs to know about one
// participant link.
type ParticipantContext struct {
	ParticipantID   string                         `json:"participantId"`
	ParticipantType models.ParticipantType         `json:"participantType"`
	ParticipantName string                         `json:"participantName"`
	Booking         *models.BookingInfo            `json:"booking"`
	Meeting         *models.MeetingParticipantInfo `json:"meeting"`
	Window          Window                         `json:"-"`
}

func NewParticipantContext(participantID string, booking *models.BookingInfo, meeting *models.MeetingParticipantInfo) *ParticipantContext {
	out := &ParticipantContext{
		ParticipantID: participantID,
		Booking:       booking,
		Meeting:       meeting,
	}
	if meeting != nil {
		out.ParticipantType = meeting.ParticipantType
		out.ParticipantName = meeting.FullName
		if meeting.Meeting != nil {
			out.Window.Start = ParseInstant(meeting.Meeting.StartTime)
		}
	}
	if booking != nil {
		out.Window.End = ParseInstant(booking.AppointmentEndTime)
	}
	return out
}

// Token is the signed grant issued for this participant.
func (v *ParticipantContext) Token() string {
	if v.Meeting == nil {
		return ""
	}
	return v.Meeting.Token
}

// RoomName is the meeting id, or the participant id when the backend has no
// meeting id yet.
func (v *ParticipantContext) RoomName() string {
	if v.Meeting != nil && v.Meeting.Meeting != nil && v.Meeting.Meeting.ID != "" {
		return v.Meeting.Meeting.ID
	}
	return v.ParticipantID
}

// ParticipantResolver turns a participant link into its booking context.
type ParticipantResolver interface {
	ResolveParticipant(ctx context.Context, participantID string) (*ParticipantContext, error)
}

// BookingClient reads booking and meeting records from the backend API.
type BookingClient struct {
	BaseURL string
	Timeout time.Duration
}

func NewBookingClient(baseURL string, timeout time.Duration) *BookingClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BookingClient{BaseURL: strings.TrimRight(baseURL, "/"), Timeout: timeout}
}

// fetch returns false when the backend answers 404.
func (v *BookingClient) fetch(ctx context.Context, path string, out any) (bool, error) {
	if v.BaseURL == "" {
		return false, fmt.Errorf("backend api url is not configured")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	timeout := v.Timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}

	agent := fiber.Get(v.BaseURL + path)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return false, fmt.Errorf("request %s failed: %w", path, errors.Join(errs...))
	}

	switch {
	case code == fiber.StatusNotFound:
		return false, nil
	case code < 200 || code >= 300:
		return false, fmt.Errorf("request %s failed: %d %s", path, code, utils.StatusMessage(code))
	}

	if err := jsoniter.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return true, nil
}

func (v *BookingClient) GetBooking(ctx context.Context, participantID string) (*models.BookingInfo, error) {
	var booking models.BookingInfo
	if found, err := v.fetch(ctx, "/booking/participant/"+url.PathEscape(participantID), &booking); err != nil || !found {
		return nil, err
	}
	return &booking, nil
}

func (v *BookingClient) GetMeeting(ctx context.Context, participantID string) (*models.MeetingParticipantInfo, error) {
	var meeting models.MeetingParticipantInfo
	if found, err := v.fetch(ctx, "/meeting/participant/"+url.PathEscape(participantID), &meeting); err != nil || !found {
		return nil, err
	}
	if err := validation.Struct(meeting); err != nil {
		return nil, fmt.Errorf("meeting record is incomplete: %w", err)
	}
	return &meeting, nil
}

// ResolveParticipant fetches the booking and the meeting in parallel. A
// missing meeting is fatal; a missing booking only loses the end time.
func (v *BookingClient) ResolveParticipant(ctx context.Context, participantID string) (*ParticipantContext, error) {
	var booking *models.BookingInfo
	var meeting *models.MeetingParticipantInfo

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		if booking, err = v.GetBooking(gctx, participantID); err != nil {
			log.Warn().Err(err).Str("participant", participantID).Msg("Unable to fetch booking, timing defaults apply.")
			booking = nil
		}
		return nil
	})
	group.Go(func() error {
		var err error
		meeting, err = v.GetMeeting(gctx, participantID)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, newSessionError(KindBookingUnresolved, err)
	}
	if meeting == nil {
		return nil, newSessionError(KindBookingUnresolved, ErrMeetingNotFound)
	}

	return NewParticipantContext(participantID, booking, meeting), nil
}
