package domain

import (
	"fmt"
	"strings"
)

type DiagramSegment struct {
	ManuscriptID   string  `json:"manuscript_id"`
	PageFilename   string  `json:"page_filename"`
	SegmentIndex   int     `json:"segment_index"`
	SegmentClassID string  `json:"-"`
	CropPath       string  `json:"crop_path"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	CanvasURI      string  `json:"canvas_uri"`
	CategoryLevel1 string  `json:"category_level_1"`
	CategoryLevel2 string  `json:"category_level_2"`
}

// ID is the join key shared by result files, consolidated predictions and
// ground truth.
func (s DiagramSegment) ID() string {
	return DiagramID(s.ManuscriptID, s.PageFilename, s.SegmentIndex)
}

func (s DiagramSegment) PageStem() string {
	return PageStem(s.PageFilename)
}

func DiagramID(manuscriptID, pageFilename string, segmentIndex int) string {
	return fmt.Sprintf("%s_%s_%d", manuscriptID, PageStem(pageFilename), segmentIndex)
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}

// PageStem strips a known image extension. Page names contain dots
// ("D._Logic__hou02614c00458__seq15.jpg"), so filepath.Ext is not usable.
func PageStem(pageFilename string) string {
	lower := strings.ToLower(pageFilename)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return pageFilename[:len(pageFilename)-len(ext)]
		}
	}
	return pageFilename
}
