// Package assets stores uploaded app packages and images under a fixed upload
// root and resolves stored paths back to files on disk.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"appcatalog/apperr"
	"appcatalog/metrics"
	"appcatalog/models"
)

type Kind string

const (
	KindApp   Kind = "app"
	KindImage Kind = "image"
)

const mb = 1 << 20

// Dir is the subdirectory of the upload root used for kind.
func (k Kind) Dir() string { return string(k) + "s" }

// Upload is a file received from a client.
type Upload struct {
	Name string
	Size int64
	Body io.Reader
}

// Stored describes a file written by Store. Path is relative to the upload
// root and uses forward slashes.
type Stored struct {
	StoredName   string `json:"stored_name"`
	StoredPath   string `json:"stored_path"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

type Policy struct {
	Extensions []string
	MaxBytes   int64
}

func (p Policy) allows(ext string) bool {
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// SettingsReader is the subset of the settings store used for upload limits.
type SettingsReader interface {
	Int(ctx context.Context, key string, def int64) int64
	List(ctx context.Context, key string, def []string) []string
}

type Manager struct {
	root     string
	settings SettingsReader
	defaults map[Kind]Policy
	log      *logrus.Logger
	now      func() time.Time
}

// New creates the upload root with its apps/ and images/ subdirectories.
func New(root string, maxAppMB, maxImageMB int64, settings SettingsReader, log *logrus.Logger) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}
	for _, k := range []Kind{KindApp, KindImage} {
		if err := os.MkdirAll(filepath.Join(abs, k.Dir()), 0755); err != nil {
			return nil, fmt.Errorf("create upload directory: %w", err)
		}
	}
	// Symlinked roots (e.g. /tmp on macOS) must compare equal to resolved
	// file paths.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	return &Manager{
		root:     abs,
		settings: settings,
		defaults: map[Kind]Policy{
			KindApp:   {Extensions: []string{"exe", "msi", "zip", "rar", "7z"}, MaxBytes: maxAppMB * mb},
			KindImage: {Extensions: []string{"jpg", "jpeg", "png", "gif", "webp"}, MaxBytes: maxImageMB * mb},
		},
		log: log,
		now: time.Now,
	}, nil
}

func (m *Manager) Root() string { return m.root }

// Policy returns the effective policy for kind, preferring stored settings.
func (m *Manager) Policy(ctx context.Context, kind Kind) Policy {
	def := m.defaults[kind]
	if m.settings == nil {
		return def
	}

	sizeKey, extKey := models.SettingMaxUploadSizeApp, models.SettingAllowedAppExtensions
	if kind == KindImage {
		sizeKey, extKey = models.SettingMaxUploadSizeImage, models.SettingAllowedImageExtensions
	}
	return Policy{
		Extensions: m.settings.List(ctx, extKey, def.Extensions),
		MaxBytes:   m.settings.Int(ctx, sizeKey, def.MaxBytes/mb) * mb,
	}
}

// Store validates up against the policy for kind and writes it under an
// opaque name. Validation failures happen before anything touches the disk.
func (m *Manager) Store(ctx context.Context, up Upload, kind Kind) (Stored, error) {
	if kind != KindApp && kind != KindImage {
		return Stored{}, apperr.Invalid("Unknown upload kind")
	}
	if up.Body == nil || strings.TrimSpace(up.Name) == "" {
		return Stored{}, apperr.Invalid("No file provided")
	}

	policy := m.Policy(ctx, kind)
	original := path.Base(strings.ReplaceAll(up.Name, "\\", "/"))
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(original), "."))

	if ext == "" || !policy.allows(ext) {
		return Stored{}, apperr.Rejected(fmt.Sprintf("File type not allowed. Allowed types: %s", strings.Join(policy.Extensions, ", ")))
	}
	if up.Size > policy.MaxBytes {
		return Stored{}, apperr.Rejected(fmt.Sprintf("File is too large. Maximum size is %d MB", policy.MaxBytes/mb))
	}

	name := fmt.Sprintf("%s_%d.%s", strings.ReplaceAll(uuid.New().String(), "-", ""), m.now().Unix(), ext)
	rel := kind.Dir() + "/" + name
	dst := filepath.Join(m.root, kind.Dir(), name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return Stored{}, apperr.StorageErr("create upload file", err)
	}

	// Read one byte past the limit so a body larger than declared is caught.
	n, err := io.Copy(f, io.LimitReader(up.Body, policy.MaxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		m.remove(dst)
		return Stored{}, apperr.StorageErr("write upload file", err)
	}
	if n > policy.MaxBytes {
		m.remove(dst)
		return Stored{}, apperr.Rejected(fmt.Sprintf("File is too large. Maximum size is %d MB", policy.MaxBytes/mb))
	}

	metrics.StoredBytes.WithLabelValues(string(kind)).Add(float64(n))
	m.log.WithFields(logrus.Fields{"kind": kind, "path": rel, "size": n}).Info("stored upload")

	return Stored{StoredName: name, StoredPath: rel, OriginalName: original, Size: n}, nil
}

// Resolve maps a stored path to a canonical absolute path inside the upload
// root. Paths escaping the root are Forbidden, missing files NotFound.
func (m *Manager) Resolve(stored string) (string, error) {
	if strings.TrimSpace(stored) == "" {
		return "", apperr.Missing("App file is not available")
	}

	p := filepath.FromSlash(stored)
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.root, p)
	}
	p = filepath.Clean(p)
	if !m.within(p) {
		return "", apperr.Denied("Access denied")
	}

	resolved, err := filepath.EvalSymlinks(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", apperr.Missing("App file is not available")
	}
	if err != nil {
		return "", apperr.StorageErr("resolve file", err)
	}
	if !m.within(resolved) {
		return "", apperr.Denied("Access denied")
	}
	return resolved, nil
}

// Delete removes a stored regular file. Anything else, including a missing
// file or a path outside the root, is a no-op.
func (m *Manager) Delete(stored string) bool {
	p, err := m.Resolve(stored)
	if err != nil {
		return false
	}
	info, err := os.Lstat(p)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if err := os.Remove(p); err != nil {
		m.log.WithError(err).WithField("path", stored).Warn("delete stored file")
		return false
	}
	return true
}

// Check reports whether stored has the shape Store produces: a single file
// name directly under apps/ or images/ whose extension the kind's policy
// allows. Bad paths are Forbidden, disallowed extensions a Validation error.
func (m *Manager) Check(ctx context.Context, stored string) (Kind, error) {
	dir, name := path.Split(stored)
	var kind Kind
	switch strings.TrimSuffix(dir, "/") {
	case KindApp.Dir():
		kind = KindApp
	case KindImage.Dir():
		kind = KindImage
	default:
		return "", apperr.Denied("Access denied")
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", apperr.Denied("Access denied")
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if policy := m.Policy(ctx, kind); ext == "" || !policy.allows(ext) {
		return "", apperr.Rejected(fmt.Sprintf("File type not allowed. Allowed types: %s", strings.Join(policy.Extensions, ", ")))
	}
	return kind, nil
}

// Put writes r to a stored path, as produced by Store, replacing any file
// already there. It is used to restore backups.
func (m *Manager) Put(ctx context.Context, stored string, r io.Reader) (int64, error) {
	kind, err := m.Check(ctx, stored)
	if err != nil {
		return 0, err
	}
	name := path.Base(stored)

	policy := m.Policy(ctx, kind)
	target := filepath.Join(m.root, kind.Dir(), name)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".restore-*")
	if err != nil {
		return 0, apperr.StorageErr("create restore file", err)
	}
	n, err := io.Copy(tmp, io.LimitReader(r, policy.MaxBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > policy.MaxBytes {
		err = fmt.Errorf("%s exceeds %d bytes", stored, policy.MaxBytes)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), target)
	}
	if err != nil {
		m.remove(tmp.Name())
		return 0, apperr.StorageErr("restore file", err)
	}
	metrics.StoredBytes.WithLabelValues(string(kind)).Add(float64(n))
	return n, nil
}

func (m *Manager) within(p string) bool {
	rel, err := filepath.Rel(m.root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (m *Manager) remove(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.WithError(err).WithField("path", p).Warn("remove partial upload")
	}
}
