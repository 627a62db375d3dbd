package app

import (
	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

type AnswerAction int

const (
	LeaveRinging AnswerAction = iota
	AnswerCall
	RejectBusy
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropMessage
	Disconnect
)

type Policy interface {
	// OnCallReceived decides what to do with a new inbound call.
	OnCallReceived(p *call.Peer, offered map[domain.MediaType]domain.Direction) AnswerAction
	// OnBackPressure decides what to do with a remote whose send queue is full.
	OnBackPressure(remote domain.Address) BackpressureAction
}

// SimplePolicy answers everything when AutoAnswer is set. With MaxCalls > 0 a
// call arriving while more than MaxCalls are active, itself included, is
// rejected as busy. Active counts the calls.
type SimplePolicy struct {
	AutoAnswer bool
	MaxCalls   int
	Active     func() int
}

func (s SimplePolicy) OnCallReceived(p *call.Peer, offered map[domain.MediaType]domain.Direction) AnswerAction {
	if s.MaxCalls > 0 && s.Active != nil && s.Active() > s.MaxCalls {
		return RejectBusy
	}
	if !s.AutoAnswer {
		return LeaveRinging
	}
	if !offered[domain.MediaAudio].Receives() && !offered[domain.MediaVideo].Receives() {
		return LeaveRinging
	}
	return AnswerCall
}

func (SimplePolicy) OnBackPressure(domain.Address) BackpressureAction {
	return Disconnect
}
