package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"appcatalog/admin"
	"appcatalog/apperr"
	"appcatalog/assets"
	"appcatalog/auth"
	"appcatalog/catalog"
)

// Apps serves /api/apps?action=...
func (h *Handler) Apps(c *gin.Context) {
	switch c.Query("action") {
	case "get_all", "get":
		h.listApps(c)
	case "get_by_id":
		h.getApp(c)
	case "get_categories":
		h.categories(c)
	case "get_stats":
		h.stats(c)
	case "add":
		h.addApp(c)
	case "update":
		h.updateApp(c)
	case "delete":
		h.deleteApp(c)
	case "download":
		h.downloadLink(c)
	default:
		h.unknownAction(c)
	}
}

func (h *Handler) listApps(c *gin.Context) {
	page, err := h.Catalog.List(c.Request.Context(), catalog.Filter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", catalog.DefaultLimit),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", page)
}

func (h *Handler) getApp(c *gin.Context) {
	item, err := h.Catalog.Get(c.Request.Context(), paramID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", item)
}

func (h *Handler) categories(c *gin.Context) {
	cats, err := h.Catalog.Categories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", cats)
}

func (h *Handler) stats(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	st, err := h.Catalog.Stats(c.Request.Context(), time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", st)
}

func (h *Handler) downloadLink(c *gin.Context) {
	link, err := h.Catalog.Link(c.Request.Context(), paramID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "", link)
}

func (h *Handler) addApp(c *gin.Context) {
	if !h.requireAdmin(c) || !h.requirePost(c) {
		return
	}

	files, closeFiles, err := formUploads(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeFiles()

	size, _ := strconv.ParseFloat(strings.TrimSpace(c.PostForm("size_mb")), 64)
	id, err := h.Admin.Add(c.Request.Context(), auth.RequestFrom(c), admin.Fields{
		Name:           c.PostForm("name"),
		Category:       c.PostForm("category"),
		Description:    c.PostForm("description"),
		Version:        c.PostForm("version"),
		SizeMB:         size,
		Developer:      c.PostForm("developer"),
		OSRequirements: c.PostForm("os_requirements"),
		LicenseType:    c.PostForm("license_type"),
		WebsiteURL:     c.PostForm("website_url"),
		WhatsNew:       c.PostForm("whats_new"),
		IsFeatured:     formBool(c.PostForm("is_featured")),
	}, files)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "App added successfully", gin.H{"id": id})
}

func (h *Handler) updateApp(c *gin.Context) {
	if !h.requireAdmin(c) || !h.requirePost(c) {
		return
	}

	patch, err := formPatch(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	files, closeFiles, err := formUploads(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeFiles()

	if err := h.Admin.Update(c.Request.Context(), auth.RequestFrom(c), paramID(c), patch, files); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "App updated successfully", nil)
}

func (h *Handler) deleteApp(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	if err := h.Admin.Delete(c.Request.Context(), auth.RequestFrom(c), paramID(c)); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, "App deleted successfully", nil)
}

// formPatch collects the fields present in the form. Absent fields stay nil.
func formPatch(c *gin.Context) (admin.Patch, error) {
	var p admin.Patch
	text := map[string]**string{
		"name":            &p.Name,
		"category":        &p.Category,
		"description":     &p.Description,
		"version":         &p.Version,
		"developer":       &p.Developer,
		"os_requirements": &p.OSRequirements,
		"license_type":    &p.LicenseType,
		"website_url":     &p.WebsiteURL,
		"whats_new":       &p.WhatsNew,
	}
	for key, dst := range text {
		if v, present := c.GetPostForm(key); present {
			*dst = &v
		}
	}

	if v, present := c.GetPostForm("size_mb"); present {
		size, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return p, apperr.Invalid("Size must be a number")
		}
		p.SizeMB = &size
	}
	if v, present := c.GetPostForm("is_featured"); present {
		b := formBool(v)
		p.IsFeatured = &b
	}
	if v, present := c.GetPostForm("is_active"); present {
		b := formBool(v)
		p.IsActive = &b
	}
	return p, nil
}

// formUploads opens app_file and app_image when present. The returned func
// closes whatever was opened.
func formUploads(c *gin.Context) (admin.Files, func(), error) {
	var files admin.Files
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for field, dst := range map[string]**assets.Upload{"app_file": &files.App, "app_image": &files.Image} {
		fh, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			continue
		}
		if err != nil {
			closeAll()
			return admin.Files{}, func() {}, apperr.Invalid("Could not read uploaded file")
		}
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return admin.Files{}, func() {}, apperr.StorageErr("open uploaded file", err)
		}
		opened = append(opened, f)
		*dst = &assets.Upload{Name: fh.Filename, Size: fh.Size, Body: f}
	}
	return files, closeAll, nil
}
