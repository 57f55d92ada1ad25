package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appcatalog/apperr"
	"appcatalog/db/dbtest"
	"appcatalog/models"
)

func TestSeededDefaults(t *testing.T) {
	ctx := context.Background()
	store := New(dbtest.New(t))

	v, ok, err := store.Get(ctx, models.SettingMaxUploadSizeApp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "500", v)

	_, ok, err = store.Get(ctx, "missing_key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntAndListFallbacks(t *testing.T) {
	ctx := context.Background()
	store := New(dbtest.New(t))

	require.NoError(t, store.SetMany(ctx, models.SettingGroupUploads, map[string]string{
		models.SettingMaxUploadSizeImage:   "not-a-number",
		models.SettingAllowedAppExtensions: " .ZIP, exe ,,",
	}))

	assert.Equal(t, int64(5), store.Int(ctx, models.SettingMaxUploadSizeImage, 5))
	assert.Equal(t, int64(500), store.Int(ctx, models.SettingMaxUploadSizeApp, 1))
	assert.Equal(t, int64(7), store.Int(ctx, "unknown", 7))
	assert.Equal(t, []string{"zip", "exe"}, store.List(ctx, models.SettingAllowedAppExtensions, nil))
	assert.Equal(t, []string{"x"}, store.List(ctx, "unknown", []string{"x"}))
}

func TestSetManyKeepsExistingGroup(t *testing.T) {
	ctx := context.Background()
	store := New(dbtest.New(t))

	require.NoError(t, store.SetMany(ctx, "", map[string]string{
		models.SettingMaxUploadSizeApp: "250",
		"footer_text":                  "hello",
	}))

	grouped, err := store.Grouped(ctx, "")
	require.NoError(t, err)

	var found bool
	for _, s := range grouped[models.SettingGroupUploads] {
		if s.SettingKey == models.SettingMaxUploadSizeApp {
			found = true
			assert.Equal(t, "250", s.SettingValue)
		}
	}
	assert.True(t, found)

	general, err := store.Grouped(ctx, models.SettingGroupGeneral)
	require.NoError(t, err)
	require.Len(t, general, 1)
	keys := make([]string, 0)
	for _, s := range general[models.SettingGroupGeneral] {
		keys = append(keys, s.SettingKey)
	}
	assert.Contains(t, keys, "footer_text")
}

func TestSetManyRejectsEmptyInput(t *testing.T) {
	store := New(dbtest.New(t))

	err := store.SetMany(context.Background(), "", nil)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	err = store.SetMany(context.Background(), "", map[string]string{" ": "x"})
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
}

func TestSetManyRollsBackOnFailure(t *testing.T) {
	conn, mock := dbtest.Mock(t)
	store := New(conn)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "settings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "settings"`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.SetMany(context.Background(), models.SettingGroupGeneral, map[string]string{
		"a_key": "1",
		"b_key": "2",
	})
	assert.True(t, apperr.Is(err, apperr.Storage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteInfo(t *testing.T) {
	ctx := context.Background()
	store := New(dbtest.New(t))

	require.NoError(t, store.SetMany(ctx, models.SettingGroupGeneral, map[string]string{
		models.SettingSiteName: "Desk Apps",
	}))

	info, err := store.SiteInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Desk Apps", info.SiteName)
	assert.Equal(t, "admin@example.com", info.AdminEmail)
}
