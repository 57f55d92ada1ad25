package messages

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"appcatalog/activity"
	"appcatalog/apperr"
	"appcatalog/auth"
	"appcatalog/db/dbtest"
	"appcatalog/models"
)

var (
	admin    = auth.Actor{ID: 1, Username: "root", Admin: true}
	adminReq = auth.Request{Actor: admin, SourceIP: "127.0.0.1"}
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	return New(db, activity.New(db, dbtest.Quiet()), dbtest.Quiet()), db
}

func valid() Submission {
	return Submission{Name: "Dana", Email: "dana@example.com", Subject: "Hello", Message: "Love the catalog", SourceIP: "198.51.100.4"}
}

func TestSend(t *testing.T) {
	s, db := newService(t)

	id, err := s.Send(context.Background(), valid())
	require.NoError(t, err)

	var msg models.ContactMessage
	require.NoError(t, db.First(&msg, id).Error)
	assert.Equal(t, models.MessageNew, msg.Status)
	assert.Equal(t, "198.51.100.4", msg.IPAddress)
	assert.Equal(t, "Hello", msg.Subject)
}

func TestSendValidation(t *testing.T) {
	s, db := newService(t)

	for name, mutate := range map[string]func(*Submission){
		"no name":       func(in *Submission) { in.Name = " " },
		"no subject":    func(in *Submission) { in.Subject = "" },
		"no message":    func(in *Submission) { in.Message = "" },
		"bad email":     func(in *Submission) { in.Email = "not-an-email" },
		"missing email": func(in *Submission) { in.Email = "" },
	} {
		t.Run(name, func(t *testing.T) {
			in := valid()
			mutate(&in)
			_, err := s.Send(context.Background(), in)
			assert.True(t, apperr.Is(err, apperr.InvalidArgument))
		})
	}

	var n int64
	require.NoError(t, db.Model(&models.ContactMessage{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAdminOnly(t *testing.T) {
	s, _ := newService(t)
	anon := auth.Actor{}

	_, err := s.List(context.Background(), anon, "", 1, 10)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	_, err = s.Get(context.Background(), anon, 1)
	assert.True(t, apperr.Is(err, apperr.Forbidden))
	assert.True(t, apperr.Is(s.UpdateStatus(context.Background(), auth.Request{}, 1, models.MessageRead, ""), apperr.Forbidden))
	assert.True(t, apperr.Is(s.Delete(context.Background(), auth.Request{}, 1), apperr.Forbidden))
	_, err = s.Stats(context.Background(), anon, time.Now())
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestListAndGet(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		in := valid()
		in.Subject = fmt.Sprintf("subject %d", i)
		_, err := s.Send(ctx, in)
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(&models.ContactMessage{}).Where("subject = ?", "subject 0").Update("status", models.MessageArchived).Error)

	page, err := s.List(ctx, admin, "", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Len(t, page.Messages, 5)
	assert.Equal(t, []StatusCount{{"archived", 1}, {"new", 11}}, page.Stats)

	page, err = s.List(ctx, admin, models.MessageArchived, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "subject 0", page.Messages[0].Subject)

	page, err = s.List(ctx, admin, "", math.MaxInt, 10)
	require.NoError(t, err)
	assert.Equal(t, maxPage, page.Page)
	assert.Empty(t, page.Messages, "a huge page is past the end, not page 1")

	_, err = s.List(ctx, admin, "bogus", 1, 10)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	var first models.ContactMessage
	require.NoError(t, db.Where("subject = ?", "subject 3").First(&first).Error)
	got, err := s.Get(ctx, admin, int64(first.ID))
	require.NoError(t, err)
	assert.Equal(t, models.MessageRead, got.Status)

	require.NoError(t, s.UpdateStatus(ctx, adminReq, int64(first.ID), models.MessageReplied, "answered by mail"))
	got, err = s.Get(ctx, admin, int64(first.ID))
	require.NoError(t, err)
	assert.Equal(t, models.MessageReplied, got.Status, "reading does not downgrade a replied message")
	assert.Equal(t, "answered by mail", got.AdminNotes)
	assert.NotNil(t, got.RepliedAt)

	_, err = s.Get(ctx, admin, 99999)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestUpdateStatusAndDelete(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()
	id, err := s.Send(ctx, valid())
	require.NoError(t, err)

	assert.True(t, apperr.Is(s.UpdateStatus(ctx, adminReq, int64(id), "spam", ""), apperr.InvalidArgument))
	assert.True(t, apperr.Is(s.UpdateStatus(ctx, adminReq, 4242, models.MessageRead, ""), apperr.NotFound))
	require.NoError(t, s.UpdateStatus(ctx, adminReq, int64(id), models.MessageArchived, ""))

	require.NoError(t, s.Delete(ctx, adminReq, int64(id)))
	assert.True(t, apperr.Is(s.Delete(ctx, adminReq, int64(id)), apperr.NotFound))
	assert.True(t, apperr.Is(s.Delete(ctx, adminReq, 0), apperr.InvalidArgument))

	var actions []string
	require.NoError(t, db.Model(&models.ActivityLog{}).Order("id").Pluck("action", &actions).Error)
	assert.Equal(t, []string{activity.MessageUpdated, activity.MessageDeleted}, actions)
}

func TestStats(t *testing.T) {
	s, db := newService(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{
		now.Add(-1 * time.Hour),
		now.Add(-2 * time.Hour),
		now.Add(-48 * time.Hour),
		now.Add(-40 * 24 * time.Hour),
	} {
		msg := models.ContactMessage{Name: "n", Email: "e@x.io", Subject: "s", Message: "m", Status: models.MessageNew, CreatedAt: ts}
		require.NoError(t, db.Create(&msg).Error)
	}

	st, err := s.Stats(context.Background(), admin, now)
	require.NoError(t, err)
	assert.Equal(t, []DayCount{{"2026-03-08", 1}, {"2026-03-10", 2}}, st.Daily)
	assert.Equal(t, []StatusCount{{"new", 4}}, st.Status)
}
