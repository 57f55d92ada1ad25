package handlers

import (
	"github.com/gin-gonic/gin"

	"appcatalog/activity"
	"appcatalog/apperr"
	"appcatalog/auth"
)

type sessionUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AuthAction serves /api/auth?action=...
func (h *Handler) AuthAction(c *gin.Context) {
	switch c.Query("action") {
	case "login":
		h.login(c)
	case "logout":
		h.logout(c)
	case "check_session":
		h.checkSession(c)
	case "change_password":
		h.changePassword(c)
	default:
		h.unknownAction(c)
	}
}

func (h *Handler) login(c *gin.Context) {
	if !h.requirePost(c) {
		return
	}
	identifier := c.PostForm("username")
	if identifier == "" {
		identifier = c.PostForm("email")
	}

	req := auth.RequestFrom(c)
	token, user, err := h.Auth.Login(c.Request.Context(), identifier, c.PostForm("password"))
	if err != nil {
		if identifier != "" {
			h.Activity.Record(c.Request.Context(), activity.Entry{
				Action:    activity.FailedLogin,
				Details:   "Failed login for: " + identifier,
				SourceIP:  req.SourceIP,
				UserAgent: req.UserAgent,
			})
		}
		h.fail(c, err)
		return
	}

	auth.SetSessionCookie(c, token, int(h.Auth.TTL().Seconds()))
	id := user.ID
	h.Activity.Record(c.Request.Context(), activity.Entry{
		ActorID:   &id,
		Action:    activity.Login,
		Details:   "Logged in",
		SourceIP:  req.SourceIP,
		UserAgent: req.UserAgent,
	})
	ok(c, "Logged in successfully", gin.H{
		"token": token,
		"user":  sessionUser{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

func (h *Handler) logout(c *gin.Context) {
	req := auth.RequestFrom(c)
	if req.Actor.IsAdmin() {
		h.Activity.Record(c.Request.Context(), activity.Entry{
			ActorID:   req.Actor.CurrentActorID(),
			Action:    activity.Logout,
			Details:   "Logged out",
			SourceIP:  req.SourceIP,
			UserAgent: req.UserAgent,
		})
	}
	auth.ClearSessionCookie(c)
	ok(c, "Logged out successfully", nil)
}

func (h *Handler) checkSession(c *gin.Context) {
	actor := auth.ActorFrom(c)
	if !actor.IsAdmin() {
		ok(c, "", gin.H{"logged_in": false})
		return
	}
	user, err := h.Auth.User(c.Request.Context(), actor.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", gin.H{
		"logged_in": true,
		"user":      sessionUser{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

func (h *Handler) changePassword(c *gin.Context) {
	if !h.requireAdmin(c) || !h.requirePost(c) {
		return
	}
	next := c.PostForm("new_password")
	if confirm, present := c.GetPostForm("confirm_password"); present && confirm != next {
		h.fail(c, apperr.Invalid("Passwords do not match"))
		return
	}

	req := auth.RequestFrom(c)
	if err := h.Auth.ChangePassword(c.Request.Context(), req.Actor, c.PostForm("current_password"), next); err != nil {
		h.fail(c, err)
		return
	}
	h.Activity.Record(c.Request.Context(), activity.Entry{
		ActorID:   req.Actor.CurrentActorID(),
		Action:    activity.PasswordChanged,
		Details:   "Password changed",
		SourceIP:  req.SourceIP,
		UserAgent: req.UserAgent,
	})
	ok(c, "Password changed successfully", nil)
}
