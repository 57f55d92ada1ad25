// Package download serves app files to clients and counts every download
// before the first byte is sent.
package download

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"syscall"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"appcatalog/apperr"
	"appcatalog/metrics"
	"appcatalog/models"
)

const chunkSize = 8 << 10

// Client describes the requester recorded with each download.
type Client struct {
	IP        string
	UserAgent string
	Referrer  string
}

// Payload is an opened, already counted download. The caller must Close it.
type Payload struct {
	AppID uint
	File  *os.File
	Name  string
	Size  int64
}

func (p *Payload) Close() error {
	if p == nil || p.File == nil {
		return nil
	}
	return p.File.Close()
}

type Resolver interface {
	Resolve(stored string) (string, error)
}

type Streamer struct {
	db       *gorm.DB
	files    Resolver
	maxBytes int64
	log      *logrus.Logger
}

// New returns a Streamer. maxBytes caps the size of a served file; 0 disables
// the cap.
func New(db *gorm.DB, files Resolver, maxBytes int64, log *logrus.Logger) *Streamer {
	return &Streamer{db: db, files: files, maxBytes: maxBytes, log: log}
}

// Open locates and opens the file of active app id and records the download.
func (s *Streamer) Open(ctx context.Context, id int64, c Client) (*Payload, error) {
	if id <= 0 {
		return nil, apperr.Invalid("Invalid app id")
	}

	var app models.App
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.fail("not_found", apperr.Missing("App not found"))
	}
	if err != nil {
		return nil, s.fail("error", apperr.StorageErr("load app", err))
	}
	if app.FilePath == "" {
		return nil, s.fail("not_found", apperr.Missing("App file is not available"))
	}

	abs, err := s.files.Resolve(app.FilePath)
	if err != nil {
		if apperr.Is(err, apperr.Forbidden) {
			s.log.WithFields(logrus.Fields{"app_id": app.ID, "path": app.FilePath, "ip": c.IP}).Warn("download path escapes upload root")
		}
		return nil, s.fail(outcome(err), err)
	}

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, s.fail("not_found", apperr.Missing("App file is not available"))
		}
		return nil, s.fail("error", apperr.StorageErr("open app file", err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, s.fail("error", apperr.StorageErr("stat app file", err))
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, s.fail("not_found", apperr.Missing("App file is not available"))
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		f.Close()
		return nil, s.fail("too_large", apperr.New(apperr.PayloadTooLarge, "File is too large to download"))
	}

	if err := s.count(ctx, app.ID, c); err != nil {
		f.Close()
		return nil, s.fail("error", err)
	}
	metrics.Downloads.WithLabelValues("served").Inc()

	name := app.FileName
	if name == "" {
		name = path.Base(app.FilePath)
	}
	return &Payload{AppID: app.ID, File: f, Name: name, Size: info.Size()}, nil
}

// count bumps the app counter and records the download in one transaction.
func (s *Streamer) count(ctx context.Context, appID uint, c Client) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.App{}).Where("id = ?", appID).
			UpdateColumn("downloads", gorm.Expr("downloads + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Create(&models.Download{
			AppID:     appID,
			UserIP:    c.IP,
			UserAgent: c.UserAgent,
			Referrer:  c.Referrer,
		}).Error
	})
	if err != nil {
		return apperr.StorageErr("record download", err)
	}
	return nil
}

// Stream copies p to w in fixed-size chunks until EOF or ctx is done. A client
// that goes away ends the stream without an error.
func (s *Streamer) Stream(ctx context.Context, w io.Writer, p *Payload) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	defer func() { metrics.StreamedBytes.Add(float64(written)) }()

	for {
		if err := ctx.Err(); err != nil {
			s.log.WithField("app_id", p.AppID).WithField("written", written).Debug("download cancelled")
			return written, nil
		}
		n, rerr := p.File.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				if clientGone(werr) {
					s.log.WithField("app_id", p.AppID).WithField("written", written).Info("download client disconnected")
					return written, nil
				}
				return written, werr
			}
		}
		if rerr == io.EOF {
			if f, ok := w.(interface{ Flush() }); ok {
				f.Flush()
			}
			return written, nil
		}
		if rerr != nil {
			return written, apperr.StorageErr("read app file", rerr)
		}
	}
}

func clientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, context.Canceled)
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.Forbidden:
		return "forbidden"
	case apperr.NotFound:
		return "not_found"
	}
	return "error"
}

func (s *Streamer) fail(label string, err error) error {
	metrics.Downloads.WithLabelValues(label).Inc()
	return err
}
