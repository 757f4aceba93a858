package uploads

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"paperdraft/internal/models"
	"paperdraft/internal/util"
)

// MIME types accepted for upload. Text and PDF become extracted text,
// images are kept base64-encoded for inline delivery to the model.
const (
	MIMETextPlain = "text/plain"
	MIMEPDF       = "application/pdf"
	MIMEPNG       = "image/png"
	MIMEJPEG      = "image/jpeg"
	MIMEWebP      = "image/webp"
)

// FileID derives a stable identifier from the file's name, modification
// time, and size, so re-adding the same file replaces rather than
// duplicates it.
func FileID(name string, modTimeMillis int64, size int64) string {
	return fmt.Sprintf("%s-%d-%d", name, modTimeMillis, size)
}

func sniffMIME(name, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return MIMETextPlain
	case ".pdf":
		return MIMEPDF
	case ".png":
		return MIMEPNG
	case ".jpg", ".jpeg":
		return MIMEJPEG
	case ".webp":
		return MIMEWebP
	}
	return declared
}

// ProcessFile turns raw upload bytes into an UploadedFile record. Per-file
// failures are reported on the record's Status and ErrorMessage rather than
// as an error, so one bad file never blocks a batch.
func ProcessFile(name, declaredMIME string, modTimeMillis int64, content []byte, maxBytes int64) models.UploadedFile {
	f := models.UploadedFile{
		ID:       FileID(name, modTimeMillis, int64(len(content))),
		Name:     name,
		Size:     int64(len(content)),
		MIMEType: sniffMIME(name, declaredMIME),
		Status:   models.FileReading,
	}
	if f.Size > maxBytes {
		f.Status = models.FileError
		f.ErrorMessage = fmt.Sprintf("file exceeds the %d MB size limit", maxBytes/(1<<20))
		return f
	}

	switch f.MIMEType {
	case MIMETextPlain:
		text := util.SanitizeText(string(content))
		if strings.TrimSpace(text) == "" {
			f.Status = models.FileError
			f.ErrorMessage = util.ErrNoExtractableText.Error()
			return f
		}
		f.ExtractedText = text
		f.Status = models.FileReady
	case MIMEPDF:
		text, err := extractPDFText(content)
		if err != nil {
			f.Status = models.FileError
			f.ErrorMessage = err.Error()
			return f
		}
		f.ExtractedText = text
		f.Status = models.FileReady
	case MIMEPNG, MIMEJPEG, MIMEWebP:
		f.Base64Data = base64.StdEncoding.EncodeToString(content)
		f.Status = models.FileReady
	default:
		f.Status = models.FileUnsupported
		f.ErrorMessage = fmt.Sprintf("unsupported file type %q", f.MIMEType)
	}
	return f
}

func extractPDFText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}
