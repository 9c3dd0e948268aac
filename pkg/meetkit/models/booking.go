package models

// BookingInfo is served by GET /booking/participant/:participantId.
type BookingInfo struct {
	Identifier           string            `json:"identifier" validate:"required"`
	AppointmentTime      string            `json:"appointmentTime"`
	AppointmentStartTime string            `json:"appointmentStartTime,omitempty"`
	AppointmentEndTime   string            `json:"appointmentEndTime"`
	AppointmentDuration  string            `json:"appointmentDuration,omitempty"`
	Modality             ModalityInfo      `json:"modality"`
	Provider             ProviderInfo      `json:"provider"`
	Client               ClientInfo        `json:"client"`
	Participants         []ParticipantInfo `json:"participants"`
	CreatedAt            string            `json:"createdAt"`
}

type ProviderInfo struct {
	FirstName         string  `json:"firstName"`
	LastName          string  `json:"lastName"`
	Identifier        string  `json:"identifier"`
	Photo             string  `json:"photo,omitempty"`
	ProfessionalTitle *string `json:"professionalTitle,omitempty"`
	Timezone          string  `json:"timezone"`
	ProviderType      string  `json:"providerType,omitempty"`
}

type ClientInfo struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Identifier string `json:"identifier"`
	PhotoURL   string `json:"photoUrl,omitempty"`
	Timezone   string `json:"timezone"`
	ClientType string `json:"clientType,omitempty"`
}

type ParticipantInfo struct {
	Reference       string  `json:"reference"`
	IsGuest         int     `json:"isGuest"`
	FullName        *string `json:"fullName"`
	ParticipantType *string `json:"participantType"`
	Identifier      string  `json:"identifier"`
}

type ModalityInfo struct {
	Identifier string `json:"identifier"`
	IsOffline  int    `json:"isOffline"`
	Name       string `json:"name"`
	ShortName  string `json:"shortName,omitempty"`
}

type ParticipantType = string

const (
	ParticipantTypeProvider    = ParticipantType("provider")
	ParticipantTypeClient      = ParticipantType("client")
	ParticipantTypeParticipant = ParticipantType("participant")
)

// MeetingParticipantInfo is served by GET /meeting/participant/:participantId
// and carries the signed access grant.
type MeetingParticipantInfo struct {
	Identifier            string          `json:"identifier"`
	ParticipantType       ParticipantType `json:"participantType"`
	ParticipantIdentifier *string         `json:"participantIdentifier"`
	FullName              string          `json:"fullName"`
	IsOwner               bool            `json:"isOwner"`
	Token                 string          `json:"token" validate:"required"`
	Meeting               *MeetingInfo    `json:"meeting,omitempty"`
}

type MeetingInfo struct {
	ID                 string               `json:"id"`
	StartTime          string               `json:"startTime"`
	JoinURL            string               `json:"joinUrl"`
	Duration           string               `json:"duration"`
	ExternalIdentifier string               `json:"externalIdentifier,omitempty"`
	Provider           *MeetingProviderInfo `json:"provider,omitempty"`
}

type MeetingProviderInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// PartnerName is the display name of the other side of the booking as seen
// by a participant of the given type.
func (v BookingInfo) PartnerName(viewer ParticipantType) string {
	if viewer == ParticipantTypeClient {
		title := ""
		if v.Provider.ProfessionalTitle != nil {
			title = *v.Provider.ProfessionalTitle
		}
		return trimJoin(title, v.Provider.FirstName, v.Provider.LastName)
	}
	return trimJoin(v.Client.FirstName, v.Client.LastName)
}

func trimJoin(parts ...string) string {
	out := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += part
	}
	return out
}
