// Package admin implements catalog mutations: adding, updating and deleting
// apps together with the files they own.
package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"appcatalog/activity"
	"appcatalog/apperr"
	"appcatalog/assets"
	"appcatalog/auth"
	"appcatalog/models"
)

const (
	defaultOSRequirements = "Windows 7 or later"
	defaultLicenseType    = "Free"
)

// Files holds the optional uploads of an add or update.
type Files struct {
	App   *assets.Upload
	Image *assets.Upload
}

type Fields struct {
	Name           string
	Category       string
	Description    string
	Version        string
	SizeMB         float64
	Developer      string
	OSRequirements string
	LicenseType    string
	WebsiteURL     string
	WhatsNew       string
	IsFeatured     bool
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Name           *string
	Category       *string
	Description    *string
	Version        *string
	SizeMB         *float64
	Developer      *string
	OSRequirements *string
	LicenseType    *string
	WebsiteURL     *string
	WhatsNew       *string
	IsFeatured     *bool
	IsActive       *bool
}

type FileStore interface {
	Store(ctx context.Context, up assets.Upload, kind assets.Kind) (assets.Stored, error)
	Delete(stored string) bool
}

type Flow struct {
	db       *gorm.DB
	files    FileStore
	activity activity.Recorder
	log      *logrus.Logger
}

func New(db *gorm.DB, files FileStore, rec activity.Recorder, log *logrus.Logger) *Flow {
	return &Flow{db: db, files: files, activity: rec, log: log}
}

func forbidden() error {
	return apperr.Denied("You are not allowed to do this")
}

// Add validates in, stores any uploads and inserts the app. Nothing is
// written to the database unless every upload was stored.
func (f *Flow) Add(ctx context.Context, req auth.Request, in Fields, files Files) (uint, error) {
	if !req.Actor.IsAdmin() {
		return 0, forbidden()
	}
	in = trimFields(in)
	if err := checkRequired(in.Name, in.Category, in.Description, in.Version, in.SizeMB); err != nil {
		return 0, err
	}
	if in.OSRequirements == "" {
		in.OSRequirements = defaultOSRequirements
	}
	if in.LicenseType == "" {
		in.LicenseType = defaultLicenseType
	}

	stored, err := f.storeAll(ctx, files)
	if err != nil {
		return 0, err
	}

	app := models.App{
		Name:           in.Name,
		Category:       in.Category,
		Description:    in.Description,
		Version:        in.Version,
		SizeMB:         in.SizeMB,
		Developer:      in.Developer,
		OSRequirements: in.OSRequirements,
		LicenseType:    in.LicenseType,
		WebsiteURL:     in.WebsiteURL,
		WhatsNew:       in.WhatsNew,
		IsFeatured:     in.IsFeatured,
		IsActive:       true,
	}
	stored.apply(&app)

	if err := f.db.WithContext(ctx).Create(&app).Error; err != nil {
		stored.discard(f.files)
		return 0, apperr.StorageErr("insert app", err)
	}

	f.record(ctx, req, activity.AppAdded, "App added: "+app.Name)
	f.log.WithFields(logrus.Fields{"app_id": app.ID, "actor": req.Actor.Username}).Info("app added")
	return app.ID, nil
}

// Update applies p and any new uploads to app id. Replaced files are deleted
// only after the row points at their successors.
func (f *Flow) Update(ctx context.Context, req auth.Request, id int64, p Patch, files Files) error {
	if !req.Actor.IsAdmin() {
		return forbidden()
	}
	if id <= 0 {
		return apperr.Invalid("Invalid app id")
	}

	current, err := f.load(ctx, id)
	if err != nil {
		return err
	}

	cols, err := patchColumns(p)
	if err != nil {
		return err
	}

	stored, err := f.storeAll(ctx, files)
	if err != nil {
		return err
	}
	for k, v := range stored.columns() {
		cols[k] = v
	}
	cols["updated_at"] = time.Now()

	res := f.db.WithContext(ctx).Model(&models.App{}).Where("id = ?", current.ID).Updates(cols)
	if res.Error != nil {
		stored.discard(f.files)
		return apperr.StorageErr("update app", res.Error)
	}
	if res.RowsAffected == 0 {
		// Deleted since load; the old files went with it.
		stored.discard(f.files)
		return apperr.Missing("App not found")
	}

	if stored.app != nil && current.FilePath != "" {
		f.files.Delete(current.FilePath)
	}
	if stored.image != nil && current.ImagePath != "" {
		f.files.Delete(current.ImagePath)
	}

	name := current.Name
	if p.Name != nil {
		name = strings.TrimSpace(*p.Name)
	}
	f.record(ctx, req, activity.AppUpdated, "App updated: "+name)
	f.log.WithFields(logrus.Fields{"app_id": current.ID, "actor": req.Actor.Username}).Info("app updated")
	return nil
}

// Delete removes the app's files (best-effort) and then its row. Download
// history is kept.
func (f *Flow) Delete(ctx context.Context, req auth.Request, id int64) error {
	if !req.Actor.IsAdmin() {
		return forbidden()
	}
	if id <= 0 {
		return apperr.Invalid("Invalid app id")
	}

	app, err := f.load(ctx, id)
	if err != nil {
		return err
	}

	if app.FilePath != "" {
		f.files.Delete(app.FilePath)
	}
	if app.ImagePath != "" {
		f.files.Delete(app.ImagePath)
	}

	if err := f.db.WithContext(ctx).Delete(&models.App{}, app.ID).Error; err != nil {
		return apperr.StorageErr("delete app", err)
	}

	f.record(ctx, req, activity.AppDeleted, "App deleted: "+app.Name)
	f.log.WithFields(logrus.Fields{"app_id": app.ID, "actor": req.Actor.Username}).Info("app deleted")
	return nil
}

func (f *Flow) load(ctx context.Context, id int64) (models.App, error) {
	var app models.App
	err := f.db.WithContext(ctx).First(&app, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return app, apperr.Missing("App not found")
	}
	if err != nil {
		return app, apperr.StorageErr("load app", err)
	}
	return app, nil
}

func (f *Flow) record(ctx context.Context, req auth.Request, action, details string) {
	if f.activity == nil {
		return
	}
	f.activity.Record(ctx, activity.Entry{
		ActorID:   req.Actor.CurrentActorID(),
		Action:    action,
		Details:   details,
		SourceIP:  req.SourceIP,
		UserAgent: req.UserAgent,
	})
}

type storedFiles struct {
	app   *assets.Stored
	image *assets.Stored
}

// storeAll stores the app file, then the image. If the image fails the app
// file stored in this call is removed again.
func (f *Flow) storeAll(ctx context.Context, files Files) (storedFiles, error) {
	var out storedFiles
	if files.App != nil {
		s, err := f.files.Store(ctx, *files.App, assets.KindApp)
		if err != nil {
			return out, err
		}
		out.app = &s
	}
	if files.Image != nil {
		s, err := f.files.Store(ctx, *files.Image, assets.KindImage)
		if err != nil {
			out.discard(f.files)
			return storedFiles{}, err
		}
		out.image = &s
	}
	return out, nil
}

func (s storedFiles) apply(app *models.App) {
	if s.app != nil {
		app.FileName, app.FilePath = s.app.OriginalName, s.app.StoredPath
	}
	if s.image != nil {
		app.ImageName, app.ImagePath = s.image.OriginalName, s.image.StoredPath
	}
}

func (s storedFiles) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if s.app != nil {
		cols["file_name"], cols["file_path"] = s.app.OriginalName, s.app.StoredPath
	}
	if s.image != nil {
		cols["image_name"], cols["image_path"] = s.image.OriginalName, s.image.StoredPath
	}
	return cols
}

func (s storedFiles) discard(files FileStore) {
	if s.app != nil {
		files.Delete(s.app.StoredPath)
	}
	if s.image != nil {
		files.Delete(s.image.StoredPath)
	}
}

// Validate checks the columns every catalog row must carry. Restored rows go
// through it as well as new ones.
func Validate(a models.App) error {
	return checkRequired(strings.TrimSpace(a.Name), strings.TrimSpace(a.Category),
		strings.TrimSpace(a.Description), strings.TrimSpace(a.Version), a.SizeMB)
}

func checkRequired(name, category, description, version string, sizeMB float64) error {
	if name == "" || category == "" || description == "" || version == "" {
		return apperr.Invalid("Please fill in all required fields")
	}
	if sizeMB <= 0 {
		return apperr.Invalid("Size must be greater than zero")
	}
	return nil
}

func trimFields(in Fields) Fields {
	for _, s := range []*string{&in.Name, &in.Category, &in.Description, &in.Version, &in.Developer,
		&in.OSRequirements, &in.LicenseType, &in.WebsiteURL, &in.WhatsNew} {
		*s = strings.TrimSpace(*s)
	}
	return in
}

// patchColumns validates p and maps it to column updates. Required fields
// may be changed but not blanked.
func patchColumns(p Patch) (map[string]interface{}, error) {
	cols := map[string]interface{}{}

	required := []struct {
		col string
		val *string
	}{
		{"name", p.Name},
		{"category", p.Category},
		{"description", p.Description},
		{"version", p.Version},
	}
	for _, r := range required {
		if r.val == nil {
			continue
		}
		v := strings.TrimSpace(*r.val)
		if v == "" {
			return nil, apperr.Invalid("Please fill in all required fields")
		}
		cols[r.col] = v
	}

	optional := []struct {
		col string
		val *string
	}{
		{"developer", p.Developer},
		{"os_requirements", p.OSRequirements},
		{"license_type", p.LicenseType},
		{"website_url", p.WebsiteURL},
		{"whats_new", p.WhatsNew},
	}
	for _, o := range optional {
		if o.val != nil {
			cols[o.col] = strings.TrimSpace(*o.val)
		}
	}

	if p.SizeMB != nil {
		if *p.SizeMB <= 0 {
			return nil, apperr.Invalid("Size must be greater than zero")
		}
		cols["size_mb"] = *p.SizeMB
	}
	if p.IsFeatured != nil {
		cols["is_featured"] = *p.IsFeatured
	}
	if p.IsActive != nil {
		cols["is_active"] = *p.IsActive
	}
	return cols, nil
}
