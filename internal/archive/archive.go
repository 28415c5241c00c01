// Package archive stores uploaded shapefile bundles and extracts them for loading.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/geoportal/internal/core/apperr"
)

var zipContentTypes = map[string]struct{}{
	"":                             {},
	"application/zip":              {},
	"application/x-zip":            {},
	"application/x-zip-compressed": {},
	"multipart/x-zip":              {},
	"application/octet-stream":     {},
}

// sidecar extensions normalised to lower case so the .dbf/.prj lookups find them
var shapefileParts = map[string]struct{}{
	".shp": {}, ".shx": {}, ".dbf": {}, ".prj": {}, ".cpg": {}, ".sbn": {}, ".sbx": {}, ".qix": {},
}

type Archive struct {
	// ArchivePath is the stored upload inside the storage directory.
	ArchivePath string
	// Dir holds the extracted entries.
	Dir string
	// ShapefilePath is the first .shp entry, by name.
	ShapefilePath string
}

// Cleanup removes the extracted entries and keeps the stored upload.
func (a *Archive) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(a.Dir); err != nil {
		return fmt.Errorf("remove %s: %w", a.Dir, err)
	}
	return nil
}

type Validator struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

func New(storageDir string, maxBytes int64, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	return &Validator{dir: storageDir, maxBytes: maxBytes, logger: logger, now: time.Now}
}

// Validate stores the stream, requires at least one .shp entry and extracts the bundle.
// Any failure removes what was written before returning.
func (v *Validator) Validate(ctx context.Context, r io.Reader, contentType string) (*Archive, error) {
	if err := checkContentType(contentType); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(v.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	name := v.now().Format("20060102150405") + "-" + uuid.NewString()[:8] + ".zip"
	archivePath := filepath.Join(v.dir, name)
	if err := v.store(r, archivePath); err != nil {
		_ = os.Remove(archivePath)
		return nil, err
	}

	a, err := v.extract(ctx, archivePath)
	if err != nil {
		_ = os.Remove(archivePath)
		return nil, err
	}
	v.logger.DebugContext(ctx, "archive accepted", "archive", archivePath, "shapefile", a.ShapefilePath)
	return a, nil
}

func checkContentType(ct string) error {
	mt := ""
	if ct = strings.TrimSpace(ct); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidFormat, err, "content type %q", ct)
		}
		mt = strings.ToLower(parsed)
	}
	if _, ok := zipContentTypes[mt]; !ok {
		return apperr.New(apperr.KindInvalidFormat, "content type %q is not a zip archive", ct)
	}
	return nil
}

func (v *Validator) store(r io.Reader, dst string) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, v.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	if n > v.maxBytes {
		return apperr.New(apperr.KindInvalidFormat, "archive exceeds %d bytes", v.maxBytes)
	}
	if n == 0 {
		return apperr.New(apperr.KindInvalidFormat, "empty upload")
	}
	return nil
}

func (v *Validator) extract(ctx context.Context, archivePath string) (*Archive, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if zr != nil {
			_ = zr.Close()
		}
		return nil, apperr.Wrap(apperr.KindInvalidFormat, err, "open zip")
	}
	defer func() { _ = zr.Close() }()

	var shps []string
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".shp") && !f.FileInfo().IsDir() {
			shps = append(shps, f.Name)
		}
	}
	if len(shps) == 0 {
		return nil, apperr.New(apperr.KindInvalidFormat, "archive contains no .shp entry")
	}

	dir, err := os.MkdirTemp(v.dir, "extract-*")
	if err != nil {
		return nil, fmt.Errorf("create extract dir: %w", err)
	}

	limit := v.maxBytes * 16
	var written int64
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		rel, err := safeRel(f.Name)
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		n, err := extractFile(f, filepath.Join(dir, rel), limit-written)
		written += n
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
	}

	sort.Strings(shps)
	rel, _ := safeRel(shps[0])
	return &Archive{ArchivePath: archivePath, Dir: dir, ShapefilePath: filepath.Join(dir, rel)}, nil
}

// safeRel rejects entries escaping the extraction root and lower-cases shapefile extensions.
func safeRel(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", apperr.New(apperr.KindInvalidFormat, "archive entry %q escapes the archive root", name)
	}
	ext := path.Ext(clean)
	if _, ok := shapefileParts[strings.ToLower(ext)]; ok {
		clean = strings.TrimSuffix(clean, ext) + strings.ToLower(ext)
	}
	return filepath.FromSlash(clean), nil
}

func extractFile(f *zip.File, dst string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, fmt.Errorf("mkdir for %s: %w", f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInvalidFormat, err, "open entry %q", f.Name)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, apperr.Wrap(apperr.KindInvalidFormat, err, "read entry %q", f.Name)
		}
		return n, fmt.Errorf("extract %q: %w", f.Name, err)
	}
	if n > budget {
		return n, apperr.New(apperr.KindInvalidFormat, "archive expands beyond %d bytes", budget)
	}
	return n, nil
}
