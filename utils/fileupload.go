package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

var (
	// ImageFormats are accepted for before/after evidence images
	ImageFormats = []string{".png", ".jpg", ".jpeg"}
	// AttachmentFormats are accepted for delivery order attachments
	AttachmentFormats = []string{".png", ".jpg", ".jpeg", ".pdf"}
)

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateImageFile validates an evidence image's format and size
func ValidateImageFile(fileHeader *multipart.FileHeader) error {
	return validateFile(fileHeader, ImageFormats)
}

// ValidateAttachmentFile validates a delivery attachment's format and size
func ValidateAttachmentFile(fileHeader *multipart.FileHeader) error {
	return validateFile(fileHeader, AttachmentFormats)
}

func validateFile(fileHeader *multipart.FileHeader, allowed []string) error {
	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return &FileUploadError{
		Code:    "INVALID_FILE_FORMAT",
		Message: fmt.Sprintf("Only %s files are allowed", strings.Join(allowed, ", ")),
	}
}

// ReadUploadedFile reads the whole upload into memory. Size is bounded by
// the validators above.
func ReadUploadedFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(src, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}
	return data, nil
}

// ObjectKey builds a collision-free blob key under prefix that keeps the
// original extension, e.g. installations/<id>/before/<uuid>.png
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(prefix, uuid.New().String()+ext)
}
