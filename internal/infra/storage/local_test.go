package storage

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("arquivo", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatal(err)
	}
	return req.MultipartForm.File["arquivo"][0]
}

func TestSaveDocument(t *testing.T) {
	dir := t.TempDir()
	s := NewLocal(dir, 1<<20)

	path, err := s.SaveDocument(fileHeader(t, "doc.pdf", samplePDF))
	if err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "arquivo-") || filepath.Ext(path) != ".pdf" {
		t.Errorf("unexpected path %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, samplePDF) {
		t.Errorf("stored content mismatch (err=%v)", err)
	}

	if err := s.Remove(path); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if err := s.Remove(path); err != nil {
		t.Errorf("Remove of a missing file should be a no-op: %v", err)
	}
}

func TestSaveDocument_Rejects(t *testing.T) {
	s := NewLocal(t.TempDir(), 32)

	tests := []struct {
		name    string
		content []byte
		want    error
	}{
		{"text disguised as pdf", []byte("just some text"), ErrNotPDF},
		{"too large", append(append([]byte{}, samplePDF...), bytes.Repeat([]byte("x"), 64)...), ErrTooLarge},
		{"empty", nil, ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SaveDocument(fileHeader(t, "doc.pdf", tt.content))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
