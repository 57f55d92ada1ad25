package models

import (
	"time"
)

type App struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Category       string    `gorm:"size:100;index;not null" json:"category"`
	Description    string    `gorm:"type:text;not null" json:"description"`
	Version        string    `gorm:"size:50;not null" json:"version"`
	SizeMB         float64   `gorm:"not null" json:"size_mb"`
	Developer      string    `gorm:"size:255" json:"developer"`
	OSRequirements string    `gorm:"size:255" json:"os_requirements"`
	LicenseType    string    `gorm:"size:100" json:"license_type"`
	WebsiteURL     string    `gorm:"size:500" json:"website_url"`
	WhatsNew       string    `gorm:"type:text" json:"whats_new"`
	FileName       string    `gorm:"size:255" json:"file_name"`
	FilePath       string    `gorm:"size:500" json:"file_path"`
	ImageName      string    `gorm:"size:255" json:"image_name"`
	ImagePath      string    `gorm:"size:500" json:"image_path"`
	IsFeatured     bool      `gorm:"not null;default:false;index" json:"is_featured"`
	IsActive       bool      `gorm:"not null;index" json:"is_active"`
	Views          int64     `gorm:"not null;default:0" json:"views"`
	Downloads      int64     `gorm:"not null;default:0" json:"downloads"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Download is an insert-only record of one served file. AppID is not a foreign
// key: rows outlive the app they reference.
type Download struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AppID        uint      `gorm:"index;not null" json:"app_id"`
	UserIP       string    `gorm:"size:64" json:"user_ip"`
	UserAgent    string    `gorm:"size:512" json:"user_agent"`
	Referrer     string    `gorm:"size:1024" json:"referrer"`
	DownloadDate time.Time `gorm:"autoCreateTime;index" json:"download_date"`
}
