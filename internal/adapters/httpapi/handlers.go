package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/larriantoniy/im_relay/internal/domain"
)

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type channelRequest struct {
	ChannelID string `json:"channelId"`
	Message   string `json:"message"`
}

func (s *Server) handleRoot(c *gin.Context) {
	snap, ready := s.ready.Check()
	c.JSON(http.StatusOK, gin.H{
		"status":          "running",
		"timestamp":       s.now(),
		"whatsapp_status": snap.Status.String(),
		"client_ready":    ready,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap, ready := s.ready.Check()
	body := gin.H{
		"status":             "running",
		"timestamp":          s.now(),
		"backend":            s.info.Backend,
		"whatsapp_status":    snap.Status.String(),
		"client_ready":       ready,
		"has_qr":             snap.HasQR(),
		"webhook_configured": s.info.WebhookConfigured,
		"sinks":              s.info.Sinks,
		"last_transition_at": snap.LastTransitionAt.UTC().Format(isoMillis),
	}
	if snap.ErrorDetail != "" {
		body["error"] = snap.ErrorDetail
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleQRRaw(c *gin.Context) {
	snap, _ := s.ready.Check()
	body := gin.H{"status": snap.Status.String()}
	if snap.HasQR() {
		body["qr"] = snap.QRPayload
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.To) == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: to, message"})
		return
	}

	res, err := s.sender.Send(c.Request.Context(), domain.OutboundRequest{
		TargetID:    req.To,
		Body:        req.Message,
		SubmittedAt: s.clock.Now(),
	})
	if err != nil {
		s.writeError(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Message sent successfully",
		"to":        res.To,
		"id":        res.ID,
		"ack":       res.Ack,
		"timestamp": s.now(),
	})
}

func (s *Server) handleSendToChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ChannelID) == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing required fields: channelId, message",
			"example": gin.H{"channelId": "120363XXXXXXXXXX@newsletter", "message": "Your message here"},
		})
		return
	}

	res, err := s.sender.SendToChannel(c.Request.Context(), domain.OutboundRequest{
		TargetID:    req.ChannelID,
		Body:        req.Message,
		SubmittedAt: s.clock.Now(),
	})
	if err != nil {
		s.writeError(c, err, "Failed to send message to channel")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Message sent to channel successfully",
		"channelId": res.To,
		"id":        res.ID,
		"ack":       res.Ack,
		"timestamp": s.now(),
	})
}

type chatView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	Timestamp   int64  `json:"timestamp"`
	UnreadCount int    `json:"unreadCount"`
}

type groupView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Timestamp         int64  `json:"timestamp"`
	ParticipantsCount int    `json:"participantsCount"`
}

func (s *Server) handleChats(c *gin.Context) {
	chats, err := s.chats.Chats(c.Request.Context())
	if err != nil {
		s.writeError(c, err, "Failed to fetch chats")
		return
	}
	list := make([]chatView, 0, len(chats))
	for _, ch := range chats {
		list = append(list, chatView{
			ID:          ch.ID,
			Name:        ch.Name,
			IsGroup:     ch.IsGroup,
			Timestamp:   ch.Timestamp,
			UnreadCount: ch.UnreadCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "chats": list})
}

func (s *Server) handleGroups(c *gin.Context) {
	groups, err := s.chats.Groups(c.Request.Context())
	if err != nil {
		s.writeError(c, err, "Failed to fetch groups")
		return
	}
	list := make([]groupView, 0, len(groups))
	for _, g := range groups {
		list = append(list, groupView{
			ID:                g.ID,
			Name:              g.Name,
			Timestamp:         g.Timestamp,
			ParticipantsCount: g.ParticipantsCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "groups": list})
}

// writeError переводит ошибки use case в HTTP-ответ: /send*, /chats, /groups
func (s *Server) writeError(c *gin.Context, err error, summary string) {
	var notReady *domain.NotReadyError
	switch {
	case errors.As(err, &notReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Client is not ready",
			"status": notReady.Status.String(),
		})
	case errors.Is(err, domain.ErrSendTimeout):
		c.JSON(http.StatusInternalServerError, gin.H{"error": summary, "details": err.Error()})
	case errors.Is(err, context.Canceled):
		// клиент ушёл, ответ уже никто не прочитает
		c.Status(499)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": summary, "details": err.Error()})
	}
}

func (s *Server) handleWebhookTest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read body"})
		return
	}
	s.log.Info("test webhook received", "body", string(body))
	c.JSON(http.StatusOK, gin.H{"received": true, "timestamp": s.now()})
}
