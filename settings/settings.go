// Package settings is the key/value store behind site and upload settings.
package settings

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"appcatalog/apperr"
	"appcatalog/models"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the value stored under key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var row models.Setting
	err := s.db.WithContext(ctx).Where("setting_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.StorageErr("read setting", err)
	}
	return row.SettingValue, true, nil
}

// Int returns a positive integer setting or def when the key is missing,
// unparsable or not positive.
func (s *Store) Int(ctx context.Context, key string, def int64) int64 {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// List returns a comma separated setting as lower-cased items, or def.
func (s *Store) List(ctx context.Context, key string, def []string) []string {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		item = strings.TrimPrefix(item, ".")
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Grouped returns all settings keyed by group, optionally restricted to one.
func (s *Store) Grouped(ctx context.Context, group string) (map[string][]models.Setting, error) {
	q := s.db.WithContext(ctx).Model(&models.Setting{})
	if group != "" {
		q = q.Where("setting_group = ?", group)
	}
	var rows []models.Setting
	if err := q.Order("setting_group, setting_key").Find(&rows).Error; err != nil {
		return nil, apperr.StorageErr("list settings", err)
	}

	out := make(map[string][]models.Setting)
	for _, row := range rows {
		out[row.SettingGroup] = append(out[row.SettingGroup], row)
	}
	return out, nil
}

// SetMany upserts every value in one transaction. New keys are created in
// group; existing keys keep their group.
func (s *Store) SetMany(ctx context.Context, group string, values map[string]string) error {
	if len(values) == 0 {
		return apperr.Invalid("No settings to update")
	}
	if group == "" {
		group = models.SettingGroupGeneral
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			return apperr.Invalid("Setting key is required")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			row := models.Setting{SettingKey: strings.TrimSpace(k), SettingValue: values[k], SettingGroup: group}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "setting_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"setting_value", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.StorageErr("update settings", err)
	}
	return nil
}

type SiteInfo struct {
	SiteName        string `json:"site_name"`
	SiteDescription string `json:"site_description"`
	ContactEmail    string `json:"contact_email"`
	AdminEmail      string `json:"admin_email"`
}

func (s *Store) SiteInfo(ctx context.Context) (SiteInfo, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Where("setting_group = ?", models.SettingGroupGeneral).Find(&rows).Error; err != nil {
		return SiteInfo{}, apperr.StorageErr("read site info", err)
	}
	kv := make(map[string]string, len(rows))
	for _, r := range rows {
		kv[r.SettingKey] = r.SettingValue
	}

	info := SiteInfo{
		SiteName:        kv[models.SettingSiteName],
		SiteDescription: kv[models.SettingSiteDescription],
		ContactEmail:    kv[models.SettingContactEmail],
		AdminEmail:      kv[models.SettingAdminEmail],
	}
	if info.SiteName == "" {
		info.SiteName = "App Catalog"
	}
	return info, nil
}
