package domain

type Action string

const (
	ActionSessionInitiate  Action = "session-initiate"
	ActionSessionAccept    Action = "session-accept"
	ActionSessionTerminate Action = "session-terminate"
	ActionSessionInfo      Action = "session-info"
	ActionTransportInfo    Action = "transport-info"
	ActionContentAdd       Action = "content-add"
	ActionContentAccept    Action = "content-accept"
	ActionContentModify    Action = "content-modify"
	ActionContentRemove    Action = "content-remove"
)

type ReasonCode string

const (
	ReasonSuccess                ReasonCode = "success"
	ReasonBusy                   ReasonCode = "busy"
	ReasonCancel                 ReasonCode = "cancel"
	ReasonDecline                ReasonCode = "decline"
	ReasonTimeout                ReasonCode = "timeout"
	ReasonSecurityError          ReasonCode = "security-error"
	ReasonGeneralError           ReasonCode = "general-error"
	ReasonFailedApplication      ReasonCode = "failed-application"
	ReasonIncompatibleParameters ReasonCode = "incompatible-parameters"
	ReasonConnectivityError      ReasonCode = "connectivity-error"
)

type Reason struct {
	Condition ReasonCode `json:"condition"`
	Text      string     `json:"text,omitempty"`
}

type SessionInfo string

const (
	InfoRinging SessionInfo = "ringing"
	InfoHold    SessionInfo = "hold"
	InfoUnhold  SessionInfo = "unhold"
	InfoActive  SessionInfo = "active"
)

// Transfer marks an attended or unattended transfer.
// SID names the attendant session when the transfer is attended.
type Transfer struct {
	SID  SessionID `json:"sid,omitempty"`
	From Address   `json:"from,omitempty"`
	To   Address   `json:"to"`
}

// Message is one session signaling message.
type Message struct {
	Action    Action      `json:"action"`
	SID       SessionID   `json:"sid"`
	From      Address     `json:"from"`
	To        Address     `json:"to"`
	Initiator Address     `json:"initiator,omitempty"`
	Contents  []Content   `json:"contents,omitempty"`
	Reason    *Reason     `json:"reason,omitempty"`
	Info      SessionInfo `json:"info,omitempty"`
	Transfer  *Transfer   `json:"transfer,omitempty"`
	// Focus is the conference-focus marker. A nil value means absent.
	Focus *bool `json:"focus,omitempty"`
	// InputEvents advertises that the sender accepts remote-control input.
	InputEvents bool `json:"input_events,omitempty"`
}

// ConferenceNotice carries a conference-info document, or an error reply to one.
type ConferenceNotice struct {
	SID      SessionID `json:"sid"`
	From     Address   `json:"from"`
	To       Address   `json:"to"`
	Document []byte    `json:"document,omitempty"`
	Error    *Reason   `json:"error,omitempty"`
}

// Presence reports availability of a remote resource.
type Presence struct {
	From      Address `json:"from"`
	Available bool    `json:"available"`
}
