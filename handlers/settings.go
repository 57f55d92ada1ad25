package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"appcatalog/activity"
	"appcatalog/apperr"
	"appcatalog/auth"
	"appcatalog/models"
)

// Keys anonymous callers may read through action=get.
var publicSettings = map[string]bool{
	models.SettingSiteName:        true,
	models.SettingSiteDescription: true,
	models.SettingContactEmail:    true,
}

type siteForm struct {
	SiteName        string `form:"site_name" binding:"required,max=255"`
	SiteDescription string `form:"site_description"`
	AdminEmail      string `form:"admin_email" binding:"required,email"`
	ContactEmail    string `form:"contact_email" binding:"omitempty,email"`
}

type uploadForm struct {
	MaxAppMB        int64  `form:"max_upload_size_app,default=500"`
	MaxImageMB      int64  `form:"max_upload_size_image,default=5"`
	AppExtensions   string `form:"allowed_app_extensions"`
	ImageExtensions string `form:"allowed_image_extensions"`
}

// SettingsAction serves /api/settings?action=...
func (h *Handler) SettingsAction(c *gin.Context) {
	switch c.Query("action") {
	case "get_all":
		h.allSettings(c)
	case "get":
		h.getSetting(c)
	case "update":
		h.updateSettings(c)
	case "update_site":
		h.updateSite(c)
	case "update_upload":
		h.updateUpload(c)
	case "get_site_info":
		h.siteInfo(c)
	default:
		h.unknownAction(c)
	}
}

func (h *Handler) allSettings(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	groups, err := h.Settings.Grouped(c.Request.Context(), c.Query("group"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", groups)
}

func (h *Handler) getSetting(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		h.fail(c, apperr.Invalid("Setting key is required"))
		return
	}
	if !publicSettings[key] && !h.requireAdmin(c) {
		return
	}
	v, found, err := h.Settings.Get(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		h.fail(c, apperr.Missing("Setting not found"))
		return
	}
	ok(c, "", gin.H{"key": key, "value": v})
}

func (h *Handler) updateSettings(c *gin.Context) {
	if !h.requireAdmin(c) || !h.requirePost(c) {
		return
	}
	values := c.PostFormMap("settings")
	if err := h.Settings.SetMany(c.Request.Context(), c.PostForm("group"), values); err != nil {
		h.fail(c, err)
		return
	}
	h.recordSettings(c, activity.SettingsUpdated, "Settings updated")
	ok(c, "Settings updated successfully", nil)
}

func (h *Handler) updateSite(c *gin.Context) {
	if !h.requireAdmin(c) || !h.requirePost(c) {
		return
	}
	var form siteForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, apperr.Invalid("Please provide a site name and valid email addresses"))
		return
	}
	err := h.Settings.SetMany(c.Request.Context(), models.SettingGroupGeneral, map[string]string{
		models.SettingSiteName:        strings.TrimSpace(form.SiteName),
		models.SettingSiteDescription: strings.TrimSpace(form.SiteDescription),
		models.SettingAdminEmail:      strings.TrimSpace(form.AdminEmail),
		models.SettingContactEmail:    strings.TrimSpace(form.ContactEmail),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.recordSettings(c, activity.SiteSettingsUpdated, "Site settings updated")
	ok(c, "Site settings updated successfully", nil)
}

func (h *Handler) updateUpload(c *gin.Context) {
	if !h.requireAdmin(c) || !h.requirePost(c) {
		return
	}
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, apperr.Invalid("Upload limits must be whole numbers"))
		return
	}
	if form.MaxAppMB <= 0 || form.MaxImageMB <= 0 {
		h.fail(c, apperr.Invalid("Size limits must be greater than zero"))
		return
	}
	if strings.TrimSpace(form.AppExtensions) == "" {
		form.AppExtensions = "exe,msi,zip,rar,7z"
	}
	if strings.TrimSpace(form.ImageExtensions) == "" {
		form.ImageExtensions = "jpg,jpeg,png,gif,webp"
	}
	err := h.Settings.SetMany(c.Request.Context(), models.SettingGroupUploads, map[string]string{
		models.SettingMaxUploadSizeApp:       strconv.FormatInt(form.MaxAppMB, 10),
		models.SettingMaxUploadSizeImage:     strconv.FormatInt(form.MaxImageMB, 10),
		models.SettingAllowedAppExtensions:   strings.TrimSpace(form.AppExtensions),
		models.SettingAllowedImageExtensions: strings.TrimSpace(form.ImageExtensions),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.recordSettings(c, activity.UploadSettingsUpdated, "Upload settings updated")
	ok(c, "Upload settings updated successfully", nil)
}

func (h *Handler) siteInfo(c *gin.Context) {
	info, err := h.Settings.SiteInfo(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", info)
}

func (h *Handler) recordSettings(c *gin.Context, action, details string) {
	req := auth.RequestFrom(c)
	h.Activity.Record(c.Request.Context(), activity.Entry{
		ActorID:   req.Actor.CurrentActorID(),
		Action:    action,
		Details:   details,
		SourceIP:  req.SourceIP,
		UserAgent: req.UserAgent,
	})
}
