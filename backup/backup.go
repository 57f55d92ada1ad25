// Package backup exports the catalog with its asset files as a ZIP archive
// and restores such archives.
package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"appcatalog/activity"
	"appcatalog/admin"
	"appcatalog/apperr"
	"appcatalog/assets"
	"appcatalog/auth"
	"appcatalog/models"
)

const (
	metadataName = "apps.json"
	filesPrefix  = "files/"
)

type Files interface {
	Resolve(stored string) (string, error)
	Check(ctx context.Context, stored string) (assets.Kind, error)
	Put(ctx context.Context, stored string, r io.Reader) (int64, error)
}

type Summary struct {
	Apps    int `json:"apps"`
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
}

type Service struct {
	db       *gorm.DB
	files    Files
	activity activity.Recorder
	log      *logrus.Logger
}

func New(db *gorm.DB, files Files, rec activity.Recorder, log *logrus.Logger) *Service {
	return &Service{db: db, files: files, activity: rec, log: log}
}

// Authorize reports whether req may export or restore backups.
func Authorize(req auth.Request) error {
	if !req.Actor.IsAdmin() {
		return apperr.Denied("You are not allowed to do this")
	}
	return nil
}

// Export writes apps.json followed by every asset file that still exists on
// disk, under files/<stored path>. Missing files are skipped and counted.
func (s *Service) Export(ctx context.Context, req auth.Request, w io.Writer) (Summary, error) {
	if err := Authorize(req); err != nil {
		return Summary{}, err
	}

	var apps []models.App
	if err := s.db.WithContext(ctx).Order("id").Find(&apps).Error; err != nil {
		return Summary{}, apperr.StorageErr("load apps for backup", err)
	}

	zw := zip.NewWriter(w)
	meta, err := zw.Create(metadataName)
	if err != nil {
		return Summary{}, fmt.Errorf("create metadata entry: %w", err)
	}
	enc := json.NewEncoder(meta)
	enc.SetIndent("", "  ")
	if err := enc.Encode(apps); err != nil {
		return Summary{}, fmt.Errorf("encode metadata: %w", err)
	}

	sum := Summary{Apps: len(apps)}
	for _, a := range apps {
		for _, stored := range []string{a.FilePath, a.ImagePath} {
			if stored == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if err := s.addFile(zw, stored); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{"app_id": a.ID, "path": stored}).Warn("skipping file in backup")
				sum.Skipped++
				continue
			}
			sum.Files++
		}
	}
	if err := zw.Close(); err != nil {
		return sum, fmt.Errorf("finish archive: %w", err)
	}

	s.record(ctx, req, activity.BackupCreated, fmt.Sprintf("Backup created: %d apps, %d files", sum.Apps, sum.Files))
	return sum, nil
}

func (s *Service) addFile(zw *zip.Writer, stored string) error {
	p, err := s.files.Resolve(stored)
	if err != nil {
		return err
	}
	src, err := os.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.Create(filesPrefix + stored)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Restore reads an archive produced by Export. Files are written back to the
// stored paths referenced by apps.json, then app rows are upserted by id in
// one transaction. Entries not referenced by any app are ignored.
func (s *Service) Restore(ctx context.Context, req auth.Request, r io.ReaderAt, size int64) (Summary, error) {
	if err := Authorize(req); err != nil {
		return Summary{}, err
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Summary{}, apperr.Invalid("Invalid backup archive")
	}

	apps, err := readMetadata(zr)
	if err != nil {
		return Summary{}, err
	}
	for _, a := range apps {
		if err := s.checkApp(ctx, a); err != nil {
			return Summary{}, err
		}
	}
	wanted := make(map[string]bool)
	for _, a := range apps {
		if a.FilePath != "" {
			wanted[a.FilePath] = true
		}
		if a.ImagePath != "" {
			wanted[a.ImagePath] = true
		}
	}

	sum := Summary{Apps: len(apps)}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !strings.HasPrefix(zf.Name, filesPrefix) {
			continue
		}
		stored := strings.TrimPrefix(zf.Name, filesPrefix)
		if !wanted[stored] {
			sum.Skipped++
			continue
		}
		if err := s.restoreFile(ctx, zf, stored); err != nil {
			if apperr.Is(err, apperr.Forbidden) {
				return sum, apperr.Invalid("Backup contains an invalid file path")
			}
			return sum, err
		}
		sum.Files++
	}

	if len(apps) > 0 {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&apps, 100).Error
		})
		if err != nil {
			return sum, apperr.StorageErr("restore apps", err)
		}
	}

	s.record(ctx, req, activity.BackupRestored, fmt.Sprintf("Backup restored: %d apps, %d files", sum.Apps, sum.Files))
	s.log.WithFields(logrus.Fields{"apps": sum.Apps, "files": sum.Files, "skipped": sum.Skipped}).Info("backup restored")
	return sum, nil
}

func readMetadata(zr *zip.Reader) ([]models.App, error) {
	for _, zf := range zr.File {
		if zf.Name != metadataName {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, apperr.Invalid("Invalid backup archive")
		}
		defer rc.Close()

		var apps []models.App
		if err := json.NewDecoder(rc).Decode(&apps); err != nil {
			return nil, apperr.Invalid("Backup metadata is not valid JSON")
		}
		return apps, nil
	}
	return nil, apperr.Invalid("Backup does not contain " + metadataName)
}

// checkApp applies the rules of a freshly added app to a restored row.
func (s *Service) checkApp(ctx context.Context, a models.App) error {
	if a.ID == 0 {
		return apperr.Invalid("Backup contains an app without an id")
	}
	if err := admin.Validate(a); err != nil {
		return apperr.Invalid(fmt.Sprintf("Backup app %d is invalid: %s", a.ID, apperr.PublicMessage(err)))
	}
	for _, f := range []struct {
		path string
		kind assets.Kind
	}{{a.FilePath, assets.KindApp}, {a.ImagePath, assets.KindImage}} {
		if f.path == "" {
			continue
		}
		kind, err := s.files.Check(ctx, f.path)
		if err != nil || kind != f.kind {
			return apperr.Invalid(fmt.Sprintf("Backup app %d has an invalid file path", a.ID))
		}
	}
	return nil
}

func (s *Service) restoreFile(ctx context.Context, zf *zip.File, stored string) error {
	rc, err := zf.Open()
	if err != nil {
		return apperr.Invalid("Invalid backup archive")
	}
	defer rc.Close()
	_, err = s.files.Put(ctx, stored, rc)
	return err
}

func (s *Service) record(ctx context.Context, req auth.Request, action, details string) {
	if s.activity == nil {
		return
	}
	s.activity.Record(ctx, activity.Entry{
		ActorID:   req.Actor.CurrentActorID(),
		Action:    action,
		Details:   details,
		SourceIP:  req.SourceIP,
		UserAgent: req.UserAgent,
	})
}
