package meetkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bookingFixture = `{
		"identifier": "b-1",
		"appointmentTime": "2025-03-10T14:00:00Z",
		"appointmentEndTime": "2025-03-10T14:50:00Z",
		"provider": {"firstName": "Alex", "lastName": "Rivera", "professionalTitle": "Dr.", "identifier": "pr-1", "timezone": "UTC"},
		"client": {"firstName": "Sam", "lastName": "Lee", "identifier": "c-1", "timezone": "UTC"},
		"participants": []
	}`
	meetingFixture = `{
		"identifier": "p-1",
		"participantType": "client",
		"fullName": "Sam Lee",
		"isOwner": false,
		"token": "a.b.c",
		"meeting": {"id": "room-1", "startTime": "2025-03-10T14:00:00Z", "joinUrl": "", "duration": "50"}
	}`
)

func newBackend(t *testing.T, booking, meeting int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/booking/participant/p-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(booking)
		if booking == http.StatusOK {
			_, _ = w.Write([]byte(bookingFixture))
		}
	})
	mux.HandleFunc("/meeting/participant/p-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(meeting)
		if meeting == http.StatusOK {
			_, _ = w.Write([]byte(meetingFixture))
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestResolveParticipant(t *testing.T) {
	server := newBackend(t, http.StatusOK, http.StatusOK)

	resolved, err := NewBookingClient(server.URL, 0).ResolveParticipant(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", resolved.RoomName())
	assert.Equal(t, "a.b.c", resolved.Token())
	assert.Equal(t, "Sam Lee", resolved.ParticipantName)
	assert.True(t, resolved.Window.Start.Equal(testStart))
	assert.True(t, resolved.Window.End.Equal(testEnd))
	assert.Equal(t, "Dr. Alex Rivera", resolved.Booking.PartnerName(resolved.ParticipantType))
}

func TestResolveParticipantWithoutBooking(t *testing.T) {
	server := newBackend(t, http.StatusInternalServerError, http.StatusOK)

	resolved, err := NewBookingClient(server.URL, 0).ResolveParticipant(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Nil(t, resolved.Booking)
	assert.True(t, resolved.Window.End.IsZero())
	assert.Equal(t, PhaseActive, resolved.Window.Classify(testEnd.Add(GracePeriod*10)))
}

func TestResolveParticipantWithoutMeeting(t *testing.T) {
	server := newBackend(t, http.StatusOK, http.StatusNotFound)

	_, err := NewBookingClient(server.URL, 0).ResolveParticipant(context.Background(), "p-1")
	assert.ErrorIs(t, err, ErrMeetingNotFound)
	assert.Equal(t, KindBookingUnresolved, KindOf(err))

	server = newBackend(t, http.StatusOK, http.StatusBadGateway)
	_, err = NewBookingClient(server.URL, 0).ResolveParticipant(context.Background(), "p-1")
	assert.Equal(t, KindBookingUnresolved, KindOf(err))
}

func TestBookingClientNotConfigured(t *testing.T) {
	_, err := NewBookingClient("", 0).ResolveParticipant(context.Background(), "p-1")
	assert.Equal(t, KindBookingUnresolved, KindOf(err))
}
