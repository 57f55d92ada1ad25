// Package activity records the admin audit trail.
package activity

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"appcatalog/apperr"
	"appcatalog/models"
)

const (
	AppAdded              = "app_added"
	AppUpdated            = "app_updated"
	AppDeleted            = "app_deleted"
	Login                 = "login"
	FailedLogin           = "failed_login"
	Logout                = "logout"
	PasswordChanged       = "password_changed"
	SettingsUpdated       = "settings_updated"
	SiteSettingsUpdated   = "site_settings_updated"
	UploadSettingsUpdated = "upload_settings_updated"
	MessageUpdated        = "message_updated"
	MessageDeleted        = "message_deleted"
	BackupCreated         = "backup_created"
	BackupRestored        = "backup_restored"
)

// Entry is one audit record. ActorID is nil for anonymous events.
type Entry struct {
	ActorID   *uint
	Action    string
	Details   string
	SourceIP  string
	UserAgent string
}

type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type Log struct {
	db  *gorm.DB
	log *logrus.Logger
}

func New(db *gorm.DB, log *logrus.Logger) *Log {
	return &Log{db: db, log: log}
}

// Record persists e. Failures are logged and never returned: audit logging
// must not fail the operation being audited.
func (l *Log) Record(ctx context.Context, e Entry) {
	row := models.ActivityLog{
		UserID:    e.ActorID,
		Action:    e.Action,
		Details:   e.Details,
		IPAddress: e.SourceIP,
		UserAgent: e.UserAgent,
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		l.log.WithError(err).WithField("action", e.Action).Error("record activity")
	}
}

// Recent returns the latest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows := make([]models.ActivityLog, 0, limit)
	if err := l.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperr.StorageErr("list activity", err)
	}
	return rows, nil
}
