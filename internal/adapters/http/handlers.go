package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/VoiceSignal/internal/app/call"
	"github.com/dkeye/VoiceSignal/internal/app/orch"
	"github.com/dkeye/VoiceSignal/internal/app/relay"
	"github.com/dkeye/VoiceSignal/internal/domain"
)

type handlers struct {
	orch   *orch.Orchestrator
	relays *relay.Table
}

type TargetRequest struct {
	To string `json:"to"`
}

type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type HangupRequest struct {
	// Reason is one of normal, busy, timeout or encryption.
	Reason string `json:"reason"`
	Text   string `json:"text"`
}

type TransferRequest struct {
	To        string `json:"to"`
	TargetSID string `json:"target_sid"`
}

var hangupReasons = map[string]call.HangupReason{
	"":           call.HangupNormal,
	"normal":     call.HangupNormal,
	"busy":       call.HangupBusy,
	"timeout":    call.HangupTimeout,
	"encryption": call.HangupEncryptionRequired,
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var failure *call.Failure
	switch {
	case errors.Is(err, orch.ErrUnknownCall), errors.Is(err, orch.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, call.ErrInvalidState):
		status = http.StatusConflict
	case errors.As(err, &failure):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "reason": failure.Reason})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bindTarget(c *gin.Context) (domain.Address, bool) {
	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return "", false
	}
	to, err := domain.NewAddress(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid to: " + err.Error()})
		return "", false
	}
	return to, true
}

func (h *handlers) listCalls(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Calls())
}

func (h *handlers) createCall(c *gin.Context) {
	to, ok := bindTarget(c)
	if !ok {
		return
	}
	created, _, err := h.orch.CreateOutgoingCall(c.Request.Context(), to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created.Info())
}

func (h *handlers) getCall(c *gin.Context) {
	info, err := h.orch.CallInfo(domain.CallID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handlers) addPeer(c *gin.Context) {
	to, ok := bindTarget(c)
	if !ok {
		return
	}
	p, err := h.orch.AddPeer(c.Request.Context(), domain.CallID(c.Param("id")), to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p.Info())
}

func (h *handlers) setFocus(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.orch.SetConferenceFocus(domain.CallID(c.Param("id")), req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) setVideo(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.orch.ModifyVideo(c.Request.Context(), domain.CallID(c.Param("id")), req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) answer(c *gin.Context) {
	if err := h.orch.Answer(c.Request.Context(), domain.SessionID(c.Param("sid"))); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) hangup(c *gin.Context) {
	var req HangupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	reason, ok := hangupReasons[req.Reason]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown reason " + req.Reason})
		return
	}
	if err := h.orch.Hangup(domain.SessionID(c.Param("sid")), reason, req.Text); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) hold(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.orch.Hold(domain.SessionID(c.Param("sid")), req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	var to domain.Address
	if req.TargetSID == "" {
		var err error
		if to, err = domain.NewAddress(req.To); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid to: " + err.Error()})
			return
		}
	}
	if err := h.orch.Transfer(domain.SessionID(c.Param("sid")), domain.SessionID(req.TargetSID), to); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handlers) listRelays(c *gin.Context) {
	if h.relays == nil {
		c.JSON(http.StatusOK, gin.H{"relays": []relay.Entry{}, "trackers": []relay.Entry{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"relays": h.relays.Relays(), "trackers": h.relays.Trackers()})
}

func (h *handlers) roster(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Roster.OnlineResources())
}
