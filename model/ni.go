package model

import "time"

// NiType is the origin of a network-initiated positioning request.
type NiType int

const (
	NiTypeVoice NiType = iota + 1
	NiTypeUmtsSupl
	NiTypeUmtsCtrlPlane
	NiTypeEmergencySupl
)

func (t NiType) String() string {
	switch t {
	case NiTypeVoice:
		return "voice"
	case NiTypeUmtsSupl:
		return "umts_supl"
	case NiTypeUmtsCtrlPlane:
		return "umts_ctrl_plane"
	case NiTypeEmergencySupl:
		return "emergency_supl"
	default:
		return "unknown"
	}
}

// NiResponse is the user's answer to an NI authorization prompt.
type NiResponse int

const (
	NiResponseAccept NiResponse = iota + 1
	NiResponseDeny
	NiResponseNoResponse
)

func (r NiResponse) String() string {
	switch r {
	case NiResponseAccept:
		return "accept"
	case NiResponseDeny:
		return "deny"
	case NiResponseNoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// ParseNiResponse maps a response name onto an NiResponse.
func ParseNiResponse(s string) (NiResponse, bool) {
	for _, r := range []NiResponse{NiResponseAccept, NiResponseDeny, NiResponseNoResponse} {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

// NiOptions are the notify/verify flags attached to an NI request.
type NiOptions uint32

const (
	NiNeedNotify NiOptions = 1 << iota
	NiNeedVerify
	NiPrivacyOverride
)

// NiRequest is an authorization prompt raised by the network via the engine.
type NiRequest struct {
	ID        uint32
	Type      NiType
	Options   NiOptions
	Requestor string
	Message   string
	// Emergency marks an emergency-services request; it is tracked in its
	// own state machine independent of general requests.
	Emergency bool
	// Timeout overrides the adapter default response deadline when set.
	Timeout time.Duration
	// Payload is the opaque raw request, echoed back to the engine.
	Payload []byte
}
