// Package handlers exposes the catalog over HTTP. Every JSON endpoint answers
// with the same {success, message, data} envelope.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"appcatalog/activity"
	"appcatalog/admin"
	"appcatalog/apperr"
	"appcatalog/auth"
	"appcatalog/backup"
	"appcatalog/catalog"
	"appcatalog/download"
	"appcatalog/messages"
	"appcatalog/settings"
)

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Handler holds the services behind the HTTP routes.
type Handler struct {
	Catalog   *catalog.Service
	Admin     *admin.Flow
	Downloads *download.Streamer
	Auth      *auth.Service
	Activity  *activity.Log
	Settings  *settings.Store
	Messages  *messages.Service
	Backup    *backup.Service
	Log       *logrus.Logger
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// fail writes err as an envelope. Internal failures are logged with their
// cause and reported with a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Storage || kind == apperr.Unknown {
		h.Log.WithError(err).WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"action": c.Query("action"),
		}).Error("request failed")
		_ = c.Error(err)
	}
	c.JSON(apperr.HTTPStatus(kind), Response{Success: false, Message: apperr.PublicMessage(err)})
}

func (h *Handler) unknownAction(c *gin.Context) {
	h.fail(c, apperr.Invalid("Unknown action"))
}

// requirePost rejects anything but POST with the envelope.
func (h *Handler) requirePost(c *gin.Context) bool {
	if c.Request.Method != http.MethodPost {
		h.fail(c, apperr.Invalid("Invalid request method"))
		return false
	}
	return true
}

// requireAdmin fails the request unless the caller is an admin.
func (h *Handler) requireAdmin(c *gin.Context) bool {
	if !auth.ActorFrom(c).IsAdmin() {
		h.fail(c, apperr.Denied("You are not allowed to do this"))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return def
	}
	return v
}

// paramID reads id from the query string, falling back to the form body.
func paramID(c *gin.Context) int64 {
	raw := c.Query("id")
	if raw == "" {
		raw = c.PostForm("id")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
