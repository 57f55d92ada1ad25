package models

import "time"

const (
	SettingGroupGeneral = "general"
	SettingGroupUploads = "uploads"
)

// Well-known setting keys.
const (
	SettingSiteName               = "site_name"
	SettingSiteDescription        = "site_description"
	SettingAdminEmail             = "admin_email"
	SettingContactEmail           = "contact_email"
	SettingMaxUploadSizeApp       = "max_upload_size_app"
	SettingMaxUploadSizeImage     = "max_upload_size_image"
	SettingAllowedAppExtensions   = "allowed_app_extensions"
	SettingAllowedImageExtensions = "allowed_image_extensions"
)

type Setting struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SettingKey   string    `gorm:"uniqueIndex;size:100;not null" json:"setting_key"`
	SettingValue string    `gorm:"type:text" json:"setting_value"`
	SettingGroup string    `gorm:"size:50;index;not null;default:'general'" json:"setting_group"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
