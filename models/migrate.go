package models

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&App{},
		&Download{},
		&User{},
		&ActivityLog{},
		&Setting{},
		&ContactMessage{},
	); err != nil {
		return err
	}
	return seedSettings(db)
}

// DefaultSettings are inserted on first start; existing values are kept.
func DefaultSettings() []Setting {
	return []Setting{
		{SettingKey: SettingSiteName, SettingValue: "App Catalog", SettingGroup: SettingGroupGeneral},
		{SettingKey: SettingSiteDescription, SettingValue: "Desktop applications ready to download", SettingGroup: SettingGroupGeneral},
		{SettingKey: SettingAdminEmail, SettingValue: "admin@example.com", SettingGroup: SettingGroupGeneral},
		{SettingKey: SettingContactEmail, SettingValue: "", SettingGroup: SettingGroupGeneral},
		{SettingKey: SettingMaxUploadSizeApp, SettingValue: "500", SettingGroup: SettingGroupUploads},
		{SettingKey: SettingMaxUploadSizeImage, SettingValue: "5", SettingGroup: SettingGroupUploads},
		{SettingKey: SettingAllowedAppExtensions, SettingValue: "exe,msi,zip,rar,7z", SettingGroup: SettingGroupUploads},
		{SettingKey: SettingAllowedImageExtensions, SettingValue: "jpg,jpeg,png,gif,webp", SettingGroup: SettingGroupUploads},
	}
}

func seedSettings(db *gorm.DB) error {
	defaults := DefaultSettings()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoNothing: true,
	}).Create(&defaults).Error
}
