package handlers

import (
	"github.com/gin-gonic/gin"
)

// RecentActivity lists the latest audit entries.
func (h *Handler) RecentActivity(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	rows, err := h.Activity.Recent(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", rows)
}
