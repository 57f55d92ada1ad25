package download

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"appcatalog/apperr"
	"appcatalog/assets"
	"appcatalog/db/dbtest"
	"appcatalog/models"
)

type fixture struct {
	db       *gorm.DB
	files    *assets.Manager
	streamer *Streamer
}

func newFixture(t *testing.T, maxBytes int64) fixture {
	t.Helper()
	db := dbtest.New(t)
	files, err := assets.New(t.TempDir(), 500, 5, nil, dbtest.Quiet())
	require.NoError(t, err)
	return fixture{db: db, files: files, streamer: New(db, files, maxBytes, dbtest.Quiet())}
}

func (fx fixture) app(t *testing.T, body string, active bool) models.App {
	t.Helper()
	stored, err := fx.files.Store(context.Background(), assets.Upload{Name: "Setup.zip", Size: int64(len(body)), Body: strings.NewReader(body)}, assets.KindApp)
	require.NoError(t, err)
	app := models.App{Name: "a", Category: "c", Description: "d", Version: "1", SizeMB: 1,
		FileName: stored.OriginalName, FilePath: stored.StoredPath, IsActive: active}
	require.NoError(t, fx.db.Create(&app).Error)
	return app
}

func (fx fixture) counts(t *testing.T, id uint) (counter int64, rows int64) {
	t.Helper()
	var app models.App
	require.NoError(t, fx.db.First(&app, id).Error)
	require.NoError(t, fx.db.Model(&models.Download{}).Where("app_id = ?", id).Count(&rows).Error)
	return app.Downloads, rows
}

func TestOpenAndStream(t *testing.T) {
	fx := newFixture(t, 0)
	body := strings.Repeat("0123456789abcdef", 2000)
	app := fx.app(t, body, true)

	p, err := fx.streamer.Open(context.Background(), int64(app.ID), Client{IP: "192.0.2.7", UserAgent: "curl/8", Referrer: "http://ref/"})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "Setup.zip", p.Name)
	assert.Equal(t, int64(len(body)), p.Size)

	counter, rows := fx.counts(t, app.ID)
	assert.Equal(t, int64(1), counter, "counted before streaming")
	assert.Equal(t, int64(1), rows)

	var out bytes.Buffer
	n, err := fx.streamer.Stream(context.Background(), &out, p)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, out.String())

	var d models.Download
	require.NoError(t, fx.db.Where("app_id = ?", app.ID).First(&d).Error)
	assert.Equal(t, "192.0.2.7", d.UserIP)
	assert.Equal(t, "curl/8", d.UserAgent)
	assert.Equal(t, "http://ref/", d.Referrer)
	assert.False(t, d.DownloadDate.IsZero())
}

func TestConcurrentDownloadsAreEachCounted(t *testing.T) {
	fx := newFixture(t, 0)
	app := fx.app(t, "payload", true)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := fx.streamer.Open(context.Background(), int64(app.ID), Client{IP: fmt.Sprintf("10.0.0.%d", i)})
			if !assert.NoError(t, err) {
				return
			}
			defer p.Close()
			_, err = fx.streamer.Stream(context.Background(), &bytes.Buffer{}, p)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	counter, rows := fx.counts(t, app.ID)
	assert.Equal(t, int64(2), counter)
	assert.Equal(t, int64(2), rows)
}

func TestOpenRejections(t *testing.T) {
	fx := newFixture(t, 0)
	inactive := fx.app(t, "x", false)

	escape := models.App{Name: "e", Category: "c", Description: "d", Version: "1", SizeMB: 1,
		FilePath: "../../../../etc/passwd", IsActive: true}
	missing := models.App{Name: "m", Category: "c", Description: "d", Version: "1", SizeMB: 1,
		FilePath: "apps/nothing_here.zip", IsActive: true}
	noFile := models.App{Name: "n", Category: "c", Description: "d", Version: "1", SizeMB: 1, IsActive: true}
	for _, a := range []*models.App{&escape, &missing, &noFile} {
		require.NoError(t, fx.db.Create(a).Error)
	}

	for _, tc := range []struct {
		name string
		id   int64
		want apperr.Kind
	}{
		{"zero id", 0, apperr.InvalidArgument},
		{"negative id", -3, apperr.InvalidArgument},
		{"unknown id", 99999, apperr.NotFound},
		{"inactive", int64(inactive.ID), apperr.NotFound},
		{"traversal", int64(escape.ID), apperr.Forbidden},
		{"missing file", int64(missing.ID), apperr.NotFound},
		{"no file on record", int64(noFile.ID), apperr.NotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := fx.streamer.Open(context.Background(), tc.id, Client{})
			assert.Nil(t, p)
			assert.Equal(t, tc.want, apperr.KindOf(err))
		})
	}

	var total int64
	require.NoError(t, fx.db.Model(&models.Download{}).Count(&total).Error)
	assert.Zero(t, total, "rejected downloads are not recorded")
}

func TestOpenSizeCap(t *testing.T) {
	fx := newFixture(t, 4)
	app := fx.app(t, "too long", true)

	_, err := fx.streamer.Open(context.Background(), int64(app.ID), Client{})
	assert.True(t, apperr.Is(err, apperr.PayloadTooLarge))

	counter, rows := fx.counts(t, app.ID)
	assert.Zero(t, counter)
	assert.Zero(t, rows)
}

type flushCounter struct {
	bytes.Buffer
	flushes int
}

func (f *flushCounter) Flush() { f.flushes++ }

func TestStreamFlushesOnceAtEnd(t *testing.T) {
	fx := newFixture(t, 0)
	body := strings.Repeat("x", 5*chunkSize+17)
	app := fx.app(t, body, true)

	p, err := fx.streamer.Open(context.Background(), int64(app.ID), Client{})
	require.NoError(t, err)
	defer p.Close()

	var out flushCounter
	n, err := fx.streamer.Stream(context.Background(), &out, p)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, 1, out.flushes)
}

type brokenPipe struct{ writes int }

func (b *brokenPipe) Write(p []byte) (int, error) {
	b.writes++
	if b.writes > 1 {
		return 0, fmt.Errorf("write tcp: %w", syscall.EPIPE)
	}
	return len(p), nil
}

func TestStreamClientGone(t *testing.T) {
	fx := newFixture(t, 0)
	app := fx.app(t, strings.Repeat("z", 3*chunkSize), true)

	p, err := fx.streamer.Open(context.Background(), int64(app.ID), Client{})
	require.NoError(t, err)
	defer p.Close()

	n, err := fx.streamer.Stream(context.Background(), &brokenPipe{}, p)
	assert.NoError(t, err)
	assert.Equal(t, int64(chunkSize), n)
}

func TestStreamStopsOnCancel(t *testing.T) {
	fx := newFixture(t, 0)
	app := fx.app(t, strings.Repeat("z", 2*chunkSize), true)

	p, err := fx.streamer.Open(context.Background(), int64(app.ID), Client{})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	n, err := fx.streamer.Stream(ctx, &out, p)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, out.Len())
}
