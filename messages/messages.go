// Package messages handles contact form submissions and their admin triage.
package messages

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"appcatalog/activity"
	"appcatalog/apperr"
	"appcatalog/auth"
	"appcatalog/models"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	maxPage      = 100000
	statsWindow  = 30 * 24 * time.Hour
)

// Submission is a public contact form post.
type Submission struct {
	Name     string `form:"name" binding:"required,max=100"`
	Email    string `form:"email" binding:"required,email,max=120"`
	Subject  string `form:"subject" binding:"required,max=255"`
	Message  string `form:"message" binding:"required"`
	SourceIP string `form:"-"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type Page struct {
	Messages []models.ContactMessage `json:"messages"`
	Stats    []StatusCount           `json:"stats"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	Pages    int                     `json:"pages"`
}

type Stats struct {
	Daily  []DayCount    `json:"daily_stats"`
	Status []StatusCount `json:"status_stats"`
}

type Service struct {
	db       *gorm.DB
	activity activity.Recorder
	validate *validator.Validate
	log      *logrus.Logger
}

func New(db *gorm.DB, rec activity.Recorder, log *logrus.Logger) *Service {
	return &Service{db: db, activity: rec, validate: validator.New(), log: log}
}

// Send stores a submission as a new message.
func (s *Service) Send(ctx context.Context, in Submission) (uint, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if in.Name == "" || in.Email == "" || in.Subject == "" || in.Message == "" {
		return 0, apperr.Invalid("Please fill in all required fields")
	}
	if err := s.validate.Var(in.Email, "email"); err != nil {
		return 0, apperr.Invalid("Invalid email address")
	}

	msg := models.ContactMessage{
		Name:      in.Name,
		Email:     in.Email,
		Subject:   in.Subject,
		Message:   in.Message,
		Status:    models.MessageNew,
		IPAddress: in.SourceIP,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return 0, apperr.StorageErr("store message", err)
	}
	s.log.WithFields(logrus.Fields{"message_id": msg.ID, "ip": in.SourceIP}).Info("contact message received")
	return msg.ID, nil
}

// List returns a page of messages, newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, actor auth.Actor, status string, page, limit int) (Page, error) {
	if !actor.IsAdmin() {
		return Page{}, apperr.Denied("You are not allowed to view messages")
	}
	if status != "" && !models.ValidMessageStatus(status) {
		return Page{}, apperr.Invalid("Invalid status")
	}
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	q := s.db.WithContext(ctx).Model(&models.ContactMessage{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var out Page
	if err := q.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return Page{}, apperr.StorageErr("count messages", err)
	}
	out.Messages = make([]models.ContactMessage, 0, limit)
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset((page - 1) * limit).Find(&out.Messages).Error; err != nil {
		return Page{}, apperr.StorageErr("list messages", err)
	}
	stats, err := s.statusCounts(ctx)
	if err != nil {
		return Page{}, err
	}
	out.Stats = stats
	out.Page = page
	out.Pages = int((out.Total + int64(limit) - 1) / int64(limit))
	return out, nil
}

// Get returns a message, marking it read if it was new.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id int64) (models.ContactMessage, error) {
	var msg models.ContactMessage
	if !actor.IsAdmin() {
		return msg, apperr.Denied("You are not allowed to view messages")
	}
	if id <= 0 {
		return msg, apperr.Invalid("Invalid message id")
	}

	if err := s.db.WithContext(ctx).Model(&models.ContactMessage{}).
		Where("id = ? AND status = ?", id, models.MessageNew).
		Update("status", models.MessageRead).Error; err != nil {
		return msg, apperr.StorageErr("mark message read", err)
	}
	err := s.db.WithContext(ctx).First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return msg, apperr.Missing("Message not found")
	}
	if err != nil {
		return msg, apperr.StorageErr("load message", err)
	}
	return msg, nil
}

// UpdateStatus sets the status and admin notes. Moving to replied stamps
// replied_at.
func (s *Service) UpdateStatus(ctx context.Context, req auth.Request, id int64, status, notes string) error {
	if !req.Actor.IsAdmin() {
		return apperr.Denied("You are not allowed to update messages")
	}
	if id <= 0 {
		return apperr.Invalid("Invalid message id")
	}
	if !models.ValidMessageStatus(status) {
		return apperr.Invalid("Invalid status")
	}

	cols := map[string]interface{}{
		"status":      status,
		"admin_notes": strings.TrimSpace(notes),
		"updated_at":  time.Now(),
	}
	if status == models.MessageReplied {
		cols["replied_at"] = time.Now()
	}
	res := s.db.WithContext(ctx).Model(&models.ContactMessage{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return apperr.StorageErr("update message", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Missing("Message not found")
	}
	s.record(ctx, req, activity.MessageUpdated, "Message status changed to: "+status)
	return nil
}

func (s *Service) Delete(ctx context.Context, req auth.Request, id int64) error {
	if !req.Actor.IsAdmin() {
		return apperr.Denied("You are not allowed to delete messages")
	}
	if id <= 0 {
		return apperr.Invalid("Invalid message id")
	}
	res := s.db.WithContext(ctx).Delete(&models.ContactMessage{}, id)
	if res.Error != nil {
		return apperr.StorageErr("delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Missing("Message not found")
	}
	s.record(ctx, req, activity.MessageDeleted, "Message deleted")
	return nil
}

// Stats returns per-day counts for the last 30 days and per-status totals.
func (s *Service) Stats(ctx context.Context, actor auth.Actor, now time.Time) (Stats, error) {
	if !actor.IsAdmin() {
		return Stats{}, apperr.Denied("You are not allowed to view statistics")
	}

	var stamps []time.Time
	if err := s.db.WithContext(ctx).Model(&models.ContactMessage{}).
		Where("created_at >= ?", now.Add(-statsWindow)).
		Pluck("created_at", &stamps).Error; err != nil {
		return Stats{}, apperr.StorageErr("message stats", err)
	}
	byDay := map[string]int64{}
	for _, ts := range stamps {
		byDay[ts.In(now.Location()).Format("2006-01-02")]++
	}
	daily := make([]DayCount, 0, len(byDay))
	for d, n := range byDay {
		daily = append(daily, DayCount{Date: d, Count: n})
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date < daily[j].Date })

	status, err := s.statusCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Daily: daily, Status: status}, nil
}

func (s *Service) statusCounts(ctx context.Context) ([]StatusCount, error) {
	out := make([]StatusCount, 0, 4)
	if err := s.db.WithContext(ctx).Model(&models.ContactMessage{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&out).Error; err != nil {
		return nil, apperr.StorageErr("count message statuses", err)
	}
	return out, nil
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
