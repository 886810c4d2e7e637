// Package uploads stores base64-encoded files on disk and sends them as
// messages.
package uploads

import (
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/parleychat/parley/pkg/parley/apperr"
)

const (
	genericMimeType = "application/octet-stream"
	maxBaseLength   = 64
)

// Stored describes a file written by the store
type Stored struct {
	FileName string // original client file name
	MimeType string
	URLPath  string // public path the file is served under
	DiskPath string
}

// Store writes uploads into a single flat directory
type Store struct {
	dir       string
	urlPrefix string
	maxBytes  int64
}

// NewStore creates a store rooted at dir. Files are served under urlPrefix.
func NewStore(dir, urlPrefix string, maxBytes int64) *Store {
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &Store{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/"), maxBytes: maxBytes}
}

// Dir returns the directory files are written to
func (s *Store) Dir() string {
	return s.dir
}

// URLPrefix returns the path prefix files are served under
func (s *Store) URLPrefix() string {
	return s.urlPrefix
}

// Save decodes data, which may carry a data-URL prefix, and writes it under
// a randomized name derived from fileName
func (s *Store) Save(data, declaredType, fileName string) (*Stored, error) {
	payload := stripDataURL(strings.TrimSpace(data))
	if payload == "" {
		return nil, apperr.Validation("data is required")
	}
	if s.maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > s.maxBytes+2 {
		return nil, apperr.Validation("file exceeds the %d byte limit", s.maxBytes)
	}

	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, apperr.Validation("data is not valid base64")
	}
	if len(raw) == 0 {
		return nil, apperr.Validation("file is empty")
	}
	if s.maxBytes > 0 && int64(len(raw)) > s.maxBytes {
		return nil, apperr.Validation("file exceeds the %d byte limit", s.maxBytes)
	}

	detected := mimetype.Detect(raw)
	mimeType := strings.TrimSpace(strings.SplitN(detected.String(), ";", 2)[0])
	if mimeType == genericMimeType && strings.TrimSpace(declaredType) != "" {
		mimeType = strings.TrimSpace(declaredType)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" || len(ext) > 10 {
		ext = detected.Extension()
	}
	name := fmt.Sprintf("%s-%s%s", sanitizeBase(fileName), uuid.NewString()[:8], ext)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, apperr.Internal(err, "Failed to store file")
	}
	diskPath := filepath.Join(s.dir, name)
	if err := os.WriteFile(diskPath, raw, 0o644); err != nil {
		return nil, apperr.Internal(err, "Failed to store file")
	}

	return &Stored{
		FileName: filepath.Base(fileName),
		MimeType: mimeType,
		URLPath:  path.Join(s.urlPrefix, name),
		DiskPath: diskPath,
	}, nil
}

// Remove deletes a stored file
func (s *Store) Remove(stored *Stored) error {
	if stored == nil {
		return nil
	}
	err := os.Remove(stored.DiskPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func stripDataURL(data string) string {
	if !strings.HasPrefix(data, "data:") {
		return data
	}
	if i := strings.Index(data, ","); i >= 0 {
		return data[i+1:]
	}
	return ""
}

func decodeBase64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}

// sanitizeBase keeps letters, digits, dots, dashes and underscores from the
// file's base name
func sanitizeBase(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	clean := strings.Trim(b.String(), "-.")
	if len(clean) > maxBaseLength {
		clean = clean[:maxBaseLength]
	}
	if clean == "" {
		clean = "file"
	}
	return clean
}
