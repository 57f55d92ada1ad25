// Package catalog implements the public read side of the app catalog:
// filtered listings, detail views, categories and the counters they maintain.
package catalog

import (
	"context"
	"errors"
	"path"
	"strconv"
	"time"

	"gorm.io/gorm"

	"appcatalog/apperr"
	"appcatalog/metrics"
	"appcatalog/models"
)

// PlaceholderImageURL is shown for apps without an uploaded image.
const PlaceholderImageURL = "https://images.unsplash.com/photo-1551650975-87deedd944c3?ixlib=rb-4.0.3&auto=format&fit=crop&w=600&q=80"

// Item is an app with its presentation URLs.
type Item struct {
	models.App
	ImageURL    string `json:"image_url"`
	DownloadURL string `json:"download_url"`
}

type Page struct {
	Apps  []Item `json:"apps"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Pages int    `json:"pages"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// FileResolver checks that a stored path points at a file in the upload root.
type FileResolver interface {
	Resolve(stored string) (string, error)
}

type Service struct {
	db      *gorm.DB
	files   FileResolver
	siteURL string
}

func NewService(db *gorm.DB, files FileResolver, siteURL string) *Service {
	return &Service{db: db, files: files, siteURL: siteURL}
}

// List returns one page of active apps matching f.
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalize()
	pred := BuildPredicate(f)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.App{}).
		Where(pred.SQL(), pred.Args...).
		Count(&total).Error; err != nil {
		return Page{}, apperr.StorageErr("count apps", err)
	}

	apps := make([]models.App, 0, f.Limit)
	if err := s.db.WithContext(ctx).
		Where(pred.SQL(), pred.Args...).
		Order(listOrder).
		Limit(f.Limit).
		Offset(f.Offset()).
		Find(&apps).Error; err != nil {
		return Page{}, apperr.StorageErr("list apps", err)
	}

	items := make([]Item, 0, len(apps))
	for _, a := range apps {
		items = append(items, s.present(a))
	}
	return Page{
		Apps:  items,
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
		Pages: PageCount(total, f.Limit),
	}, nil
}

// Get returns an active app and counts the view.
func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	app, err := s.active(ctx, id)
	if err != nil {
		return Item{}, err
	}

	if err := s.db.WithContext(ctx).Model(&models.App{}).
		Where("id = ?", app.ID).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
		return Item{}, apperr.StorageErr("count view", err)
	}
	metrics.Views.Inc()

	return s.present(app), nil
}

// Categories lists categories of active apps, most populated first.
func (s *Service) Categories(ctx context.Context) ([]CategoryCount, error) {
	out := make([]CategoryCount, 0)
	err := s.db.WithContext(ctx).Model(&models.App{}).
		Select("category, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("category").
		Order("count DESC, category ASC").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.StorageErr("list categories", err)
	}
	return out, nil
}

type DownloadLink struct {
	DownloadURL string `json:"download_url"`
	AppName     string `json:"app_name"`
}

// Link returns the streaming URL for an active app whose file is on disk.
// It does not count a download; the streamer does.
func (s *Service) Link(ctx context.Context, id int64) (DownloadLink, error) {
	app, err := s.active(ctx, id)
	if err != nil {
		return DownloadLink{}, err
	}
	if _, err := s.files.Resolve(app.FilePath); err != nil {
		if apperr.Is(err, apperr.Forbidden) || apperr.Is(err, apperr.NotFound) {
			return DownloadLink{}, apperr.Missing("App file is not available")
		}
		return DownloadLink{}, err
	}
	return DownloadLink{DownloadURL: s.downloadURL(app.ID), AppName: app.Name}, nil
}

type Stats struct {
	TotalApps        int64           `json:"total_apps"`
	ActiveApps       int64           `json:"active_apps"`
	FeaturedApps     int64           `json:"featured_apps"`
	TotalDownloads   int64           `json:"total_downloads"`
	TotalViews       int64           `json:"total_views"`
	DownloadsLastDay int64           `json:"downloads_last_day"`
	UnreadMessages   int64           `json:"unread_messages"`
	TopApps          []TopApp        `json:"top_apps"`
	Categories       []CategoryCount `json:"categories"`
}

type TopApp struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Downloads int64  `json:"downloads"`
	Views     int64  `json:"views"`
}

// Stats aggregates dashboard numbers.
func (s *Service) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)

	steps := []func() error{
		func() error { return db.Model(&models.App{}).Count(&st.TotalApps).Error },
		func() error { return db.Model(&models.App{}).Where("is_active = ?", true).Count(&st.ActiveApps).Error },
		func() error {
			return db.Model(&models.App{}).Where("is_active = ? AND is_featured = ?", true, true).Count(&st.FeaturedApps).Error
		},
		func() error {
			return db.Model(&models.App{}).Select("COALESCE(SUM(downloads), 0)").Scan(&st.TotalDownloads).Error
		},
		func() error {
			return db.Model(&models.App{}).Select("COALESCE(SUM(views), 0)").Scan(&st.TotalViews).Error
		},
		func() error {
			return db.Model(&models.Download{}).Where("download_date >= ?", now.Add(-24*time.Hour)).Count(&st.DownloadsLastDay).Error
		},
		func() error {
			return db.Model(&models.ContactMessage{}).Where("status = ?", models.MessageNew).Count(&st.UnreadMessages).Error
		},
		func() error {
			st.TopApps = make([]TopApp, 0, 5)
			return db.Model(&models.App{}).Select("id, name, downloads, views").
				Order("downloads DESC, id ASC").Limit(5).Scan(&st.TopApps).Error
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Stats{}, apperr.StorageErr("dashboard stats", err)
		}
	}

	cats, err := s.Categories(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Categories = cats
	return st, nil
}

func (s *Service) active(ctx context.Context, id int64) (models.App, error) {
	if id <= 0 {
		return models.App{}, apperr.Invalid("Invalid app id")
	}
	var app models.App
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.App{}, apperr.Missing("App not found")
	}
	if err != nil {
		return models.App{}, apperr.StorageErr("load app", err)
	}
	return app, nil
}

func (s *Service) present(a models.App) Item {
	return Item{App: a, ImageURL: s.ImageURL(a), DownloadURL: s.downloadURL(a.ID)}
}

// ImageURL is the public URL of the app's image or the placeholder.
func (s *Service) ImageURL(a models.App) string {
	if a.ImagePath == "" {
		return PlaceholderImageURL
	}
	return s.siteURL + "uploads/images/" + path.Base(a.ImagePath)
}

func (s *Service) downloadURL(id uint) string {
	return s.siteURL + "download?id=" + strconv.FormatUint(uint64(id), 10)
}
