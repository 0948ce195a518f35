// Package handlers wires the HTTP surface: the HipChat webhook receiver,
// the capability descriptor, the cron-triggered on-call monitor and a
// health probe.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dzhang30/DZbot/internal/command"
	"github.com/dzhang30/DZbot/internal/hipchat"
	"github.com/dzhang30/DZbot/internal/pagerduty"
)

// replyColor is the background of command replies posted back to the room.
const replyColor = "purple"

// inboundRequest is the HipChat room_message webhook payload, reduced to
// the fields the bot reads.
type inboundRequest struct {
	Item struct {
		Message struct {
			Message string `json:"message"`
			From    struct {
				Name string `json:"name"`
			} `json:"from"`
		} `json:"message"`
		Room struct {
			Name string `json:"name"`
		} `json:"room"`
	} `json:"item"`
}

// WebhookHandler receives room messages and posts the bot's reply back.
type WebhookHandler struct {
	dispatcher *command.Dispatcher
	chat       *hipchat.Client
	log        *zap.Logger
}

// NewWebhookHandler builds the webhook handler.
func NewWebhookHandler(dispatcher *command.Dispatcher, chat *hipchat.Client, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, chat: chat, log: log}
}

// Receive handles the webhook POST: parse the command, run it, send the
// reply as a room notification. A bad command produces a formatted failure
// reply, never an error response.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var inbound inboundRequest
	if err := c.ShouldBindJSON(&inbound); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed webhook payload"})
		return
	}

	ctx := c.Request.Context()
	reply := h.dispatcher.Reply(ctx, inbound.Item.Message.Message, inbound.Item.Message.From.Name)

	sent := h.chat.SendRoomNotification(ctx, inbound.Item.Room.Name, reply, replyColor)
	if !sent.Success {
		h.log.Warn("room notification failed",
			zap.String("room", inbound.Item.Room.Name), zap.String("detail", sent.Content))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": sent.Success,
		"content": sent.Content,
	})
}

// Descriptor serves the capability descriptor with the webhook callback
// rewritten to this deployment's base URL.
func (h *WebhookHandler) Descriptor(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	webhookURL := scheme + "://" + c.Request.Host

	doc, st := hipchat.CapabilityDescriptor(webhookURL)
	if !st.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"error": st.Content})
		return
	}

	c.Data(http.StatusOK, "application/json", doc)
}

// MonitorHandler exposes the on-call audit pass to the external cron.
type MonitorHandler struct {
	monitor *pagerduty.Monitor
}

// NewMonitorHandler builds the monitor handler.
func NewMonitorHandler(monitor *pagerduty.Monitor) *MonitorHandler {
	return &MonitorHandler{monitor: monitor}
}

// Run triggers the primary/secondary audit.
func (h *MonitorHandler) Run(c *gin.Context) {
	result := h.monitor.Run(c.Request.Context())

	code := http.StatusOK
	if !result.Success {
		code = http.StatusBadGateway
	}
	c.JSON(code, gin.H{
		"success": result.Success,
		"content": result.Content,
	})
}
