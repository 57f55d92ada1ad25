package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"appcatalog/download"
)

// Download streams an app file as an attachment. The download is counted
// before the first byte is written.
func (h *Handler) Download(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.Downloads.Open(ctx, paramID(c), download.Client{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	defer p.Close()

	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": p.Name}))
	c.Header("Content-Length", strconv.FormatInt(p.Size, 10))
	c.Header("Cache-Control", "must-revalidate")
	c.Header("Expires", "0")
	c.Status(http.StatusOK)

	n, err := h.Downloads.Stream(ctx, c.Writer, p)
	if err != nil {
		h.Log.WithError(err).WithField("app_id", p.AppID).WithField("written", n).Error("download interrupted")
	}
}
