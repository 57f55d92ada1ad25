package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"appcatalog/apperr"
	"appcatalog/auth"
	"appcatalog/messages"
)

// MessagesAction serves /api/messages?action=...
func (h *Handler) MessagesAction(c *gin.Context) {
	switch c.Query("action") {
	case "send":
		h.sendMessage(c)
	case "get_all":
		h.listMessages(c)
	case "get_by_id":
		h.getMessage(c)
	case "update_status":
		h.updateMessageStatus(c)
	case "delete":
		h.deleteMessage(c)
	case "get_stats":
		h.messageStats(c)
	default:
		h.unknownAction(c)
	}
}

func (h *Handler) sendMessage(c *gin.Context) {
	if !h.requirePost(c) {
		return
	}
	var in messages.Submission
	if err := c.ShouldBind(&in); err != nil {
		h.fail(c, apperr.Invalid("Please fill in all fields with a valid email address"))
		return
	}
	in.SourceIP = c.ClientIP()
	if _, err := h.Messages.Send(c.Request.Context(), in); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "Your message has been sent. We will get back to you soon.", nil)
}

func (h *Handler) listMessages(c *gin.Context) {
	page, err := h.Messages.List(c.Request.Context(), auth.ActorFrom(c), c.Query("status"), queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", page)
}

func (h *Handler) getMessage(c *gin.Context) {
	msg, err := h.Messages.Get(c.Request.Context(), auth.ActorFrom(c), paramID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", msg)
}

func (h *Handler) updateMessageStatus(c *gin.Context) {
	if !h.requireAdmin(c) || !h.requirePost(c) {
		return
	}
	err := h.Messages.UpdateStatus(c.Request.Context(), auth.RequestFrom(c), paramID(c), c.PostForm("status"), c.PostForm("notes"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "Message status updated", nil)
}

func (h *Handler) deleteMessage(c *gin.Context) {
	if err := h.Messages.Delete(c.Request.Context(), auth.RequestFrom(c), paramID(c)); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "Message deleted", nil)
}

func (h *Handler) messageStats(c *gin.Context) {
	st, err := h.Messages.Stats(c.Request.Context(), auth.ActorFrom(c), time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", st)
}
