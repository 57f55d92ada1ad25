package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"appcatalog/apperr"
	"appcatalog/auth"
	"appcatalog/backup"
)

// CreateBackup streams a ZIP of apps.json and every asset file.
func (h *Handler) CreateBackup(c *gin.Context) {
	req := auth.RequestFrom(c)
	if err := backup.Authorize(req); err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("backup-%s.zip", time.Now().Format("20060102-150405"))
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	sum, err := h.Backup.Export(c.Request.Context(), req, c.Writer)
	if err != nil {
		// Headers are gone; all that is left is to log.
		h.Log.WithError(err).Error("backup export failed")
		return
	}
	h.Log.WithField("apps", sum.Apps).WithField("files", sum.Files).WithField("skipped", sum.Skipped).Info("backup exported")
}

// RestoreBackup loads an uploaded backup archive.
func (h *Handler) RestoreBackup(c *gin.Context) {
	req := auth.RequestFrom(c)
	if err := backup.Authorize(req); err != nil {
		h.fail(c, err)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.fail(c, apperr.Invalid("No file provided"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, apperr.StorageErr("open uploaded backup", err))
		return
	}
	defer f.Close()

	sum, err := h.Backup.Restore(c.Request.Context(), req, f, fh.Size)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, fmt.Sprintf("Restored %d apps and %d files", sum.Apps, sum.Files), sum)
}
