package storage

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MIMEText = "text/plain"
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var extMIME = map[string]string{
	".txt":  MIMEText,
	".md":   MIMEText,
	".pdf":  MIMEPDF,
	".docx": MIMEDOCX,
	".zip":  "application/zip",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ContentType returns the MIME type for an uploaded file name. The declared
// type from the browser is used only when the extension is unknown.
func ContentType(filename, declared string) string {
	if t, ok := extMIME[strings.ToLower(filepath.Ext(filename))]; ok {
		return t
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

// Allowed reports whether files of this MIME type may be uploaded.
func Allowed(mime string) bool {
	for _, t := range extMIME {
		if t == mime {
			return true
		}
	}
	return false
}

// ExtractText returns the plain text of a txt, pdf or docx document.
func ExtractText(mime string, data []byte) (string, error) {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case MIMEText:
		return string(data), nil
	case MIMEPDF:
		return extractPDFText(data)
	case MIMEDOCX:
		return extractDocxText(data)
	default:
		return "", fmt.Errorf("unsupported file type: %s", mime)
	}
}

func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func extractDocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	defer doc.Close()
	return stripXML(doc.Editable().GetContent()), nil
}

// stripXML drops the WordprocessingML markup GetContent returns and keeps the
// text runs, one paragraph per line.
func stripXML(s string) string {
	var sb strings.Builder
	in := false
	var tag strings.Builder
	for _, r := range s {
		switch {
		case r == '<':
			in = true
			tag.Reset()
		case r == '>' && in:
			in = false
			if t := tag.String(); t == "/w:p" {
				sb.WriteByte('\n')
			}
		case in:
			tag.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

// ReadLimited reads at most MaxUploadSize bytes and fails if r holds more.
func ReadLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("file exceeds %d MB", MaxUploadSize>>20)
	}
	return data, nil
}
