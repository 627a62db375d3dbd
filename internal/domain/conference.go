package domain

import (
	"encoding/xml"
	"slices"
)

const ConferenceInfoNS = "urn:ietf:params:xml:ns:conference-info"

// DocState is the state attribute of a conference-info element.
type DocState string

const (
	DocFull    DocState = "full"
	DocPartial DocState = "partial"
	DocDeleted DocState = "deleted"
)

type EndpointStatus string

const (
	EndpointPending       EndpointStatus = "pending"
	EndpointDialingOut    EndpointStatus = "dialing-out"
	EndpointDialingIn     EndpointStatus = "dialing-in"
	EndpointAlerting      EndpointStatus = "alerting"
	EndpointOnHold        EndpointStatus = "on-hold"
	EndpointConnected     EndpointStatus = "connected"
	EndpointMutedViaFocus EndpointStatus = "muted-via-focus"
	EndpointDisconnecting EndpointStatus = "disconnecting"
	EndpointDisconnected  EndpointStatus = "disconnected"
)

// ConferenceInfo is a conference snapshot, full or partial.
type ConferenceInfo struct {
	XMLName   xml.Name  `xml:"urn:ietf:params:xml:ns:conference-info conference-info"`
	Entity    string    `xml:"entity,attr"`
	State     DocState  `xml:"state,attr,omitempty"`
	Version   int       `xml:"version,attr"`
	SID       SessionID `xml:"sid,attr,omitempty"`
	UserCount int       `xml:"conference-state>user-count,omitempty"`
	Users     Users     `xml:"users"`
}

type Users struct {
	State DocState         `xml:"state,attr,omitempty"`
	List  []ConferenceUser `xml:"user"`
}

type ConferenceUser struct {
	Entity      string     `xml:"entity,attr"`
	State       DocState   `xml:"state,attr,omitempty"`
	DisplayText string     `xml:"display-text,omitempty"`
	Endpoints   []Endpoint `xml:"endpoint"`
}

type Endpoint struct {
	Entity string            `xml:"entity,attr"`
	State  DocState          `xml:"state,attr,omitempty"`
	Status EndpointStatus    `xml:"status,omitempty"`
	Media  []ConferenceMedia `xml:"media"`
}

type ConferenceMedia struct {
	ID     string    `xml:"id,attr"`
	Type   MediaType `xml:"type"`
	SrcID  string    `xml:"src-id,omitempty"`
	Status Direction `xml:"status,omitempty"`
}

// NewConferenceInfo returns an empty full document for entity.
func NewConferenceInfo(entity string) *ConferenceInfo {
	return &ConferenceInfo{Entity: entity, State: DocFull, Users: Users{State: DocFull}}
}

// User returns the user with the given entity, or nil.
func (c *ConferenceInfo) User(entity string) *ConferenceUser {
	for i := range c.Users.List {
		if c.Users.List[i].Entity == entity {
			return &c.Users.List[i]
		}
	}
	return nil
}

func (c *ConferenceInfo) Clone() *ConferenceInfo {
	if c == nil {
		return nil
	}
	out := *c
	out.Users.List = make([]ConferenceUser, len(c.Users.List))
	for i, u := range c.Users.List {
		out.Users.List[i] = u.Clone()
	}
	return &out
}

func (u ConferenceUser) Clone() ConferenceUser {
	out := u
	out.Endpoints = make([]Endpoint, len(u.Endpoints))
	for i, e := range u.Endpoints {
		e.Media = slices.Clone(e.Media)
		out.Endpoints[i] = e
	}
	return out
}

// Equal compares two users field by field, endpoints and media in order.
func (u ConferenceUser) Equal(o ConferenceUser) bool {
	if u.Entity != o.Entity || u.State != o.State || u.DisplayText != o.DisplayText {
		return false
	}
	return slices.EqualFunc(u.Endpoints, o.Endpoints, func(a, b Endpoint) bool {
		return a.Entity == b.Entity && a.State == b.State && a.Status == b.Status &&
			slices.Equal(a.Media, b.Media)
	})
}

func (c *ConferenceInfo) MarshalDocument() ([]byte, error) {
	return xml.Marshal(c)
}

func ParseConferenceInfo(data []byte) (*ConferenceInfo, error) {
	var c ConferenceInfo
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ConferenceMember is one remote participant as announced by a conference focus.
type ConferenceMember struct {
	Address     Address        `json:"address"`
	DisplayName string         `json:"display_name,omitempty"`
	Status      EndpointStatus `json:"status"`
	AudioSrcID  string         `json:"audio_src_id,omitempty"`
	VideoSrcID  string         `json:"video_src_id,omitempty"`
	AudioStatus Direction      `json:"audio_status,omitempty"`
	VideoStatus Direction      `json:"video_status,omitempty"`
}
