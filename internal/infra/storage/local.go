// Package storage keeps uploaded documents on the local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrNotPDF   = errors.New("only PDF files are accepted")
	ErrTooLarge = errors.New("file exceeds the maximum size")
	ErrEmpty    = errors.New("file is empty")
)

type Local struct {
	dir     string
	maxSize int64
}

func NewLocal(dir string, maxSize int64) *Local {
	return &Local{dir: dir, maxSize: maxSize}
}

func (l *Local) Dir() string { return l.dir }

func (l *Local) MaxSize() int64 { return l.maxSize }

// SaveDocument sniffs the upload, rejects anything that is not a PDF and
// stores it as arquivo-<uuid>.pdf. The returned path is what the analysis
// record keeps.
func (l *Local) SaveDocument(fh *multipart.FileHeader) (string, error) {
	if fh.Size == 0 {
		return "", ErrEmpty
	}
	if l.maxSize > 0 && fh.Size > l.maxSize {
		return "", ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("detect upload type: %w", err)
	}
	if !mt.Is("application/pdf") {
		return "", ErrNotPDF
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(l.dir, "arquivo-"+uuid.NewString()+".pdf")

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close document: %w", err)
	}
	return path, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (l *Local) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
