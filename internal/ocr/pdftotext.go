package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the poppler pdftotext CLI.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext -layout on the given PDF and returns stdout.
// Scanned bills without a text layer come back empty; that is an error so
// callers can switch to a cloud provider.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	if mimeType(pdfPath) != "application/pdf" {
		return "", eris.Errorf("ocr: pdftotext cannot read images (%s), configure mistral or azure", pdfPath)
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	text := stdout.String()
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("ocr: %s has no text layer", pdfPath)
	}
	return text, nil
}
