package vlm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type encodedImage struct {
	MIMEType string
	Data     string
}

func (i encodedImage) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Data
}

// mimeType follows the crop naming: PNG when the extension says so,
// JPEG otherwise.
func mimeType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}

func loadImage(path string) (encodedImage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return encodedImage{}, fmt.Errorf("read image: %w", err)
	}
	return encodedImage{
		MIMEType: mimeType(path),
		Data:     base64.StdEncoding.EncodeToString(raw),
	}, nil
}
