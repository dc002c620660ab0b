package segments

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"peircevlm/internal/domain"
)

const diagramClass = "diagram"

var requiredColumns = []string{
	"segment_class", "segment_class_id", "segment_index", "page_filename", "manuscript_id",
	"x", "y", "width", "height", "canvas_uri", "category_level_1", "category_level_2",
}

type Options struct {
	// Limit stops the sequence after this many segments; zero means no limit.
	Limit int
	// PageFilter keeps only rows whose page stem equals it exactly.
	PageFilter string
}

type Loader struct {
	IndexPath string
	CropsDir  string
}

// CropPath is <crops>/cropped/<stem>/<stem>_cls<class>_<index>.jpg.
func (l Loader) CropPath(pageStem, classID string, segmentIndex int) string {
	name := fmt.Sprintf("%s_cls%s_%d.jpg", pageStem, classID, segmentIndex)
	return filepath.Join(l.CropsDir, "cropped", pageStem, name)
}

// Segments yields diagram rows whose crop exists on disk. Rows with a
// missing crop or an unparseable cell are logged and skipped. An unreadable
// index or header yields one error and ends the sequence.
func (l Loader) Segments(opts Options) iter.Seq2[domain.DiagramSegment, error] {
	return func(yield func(domain.DiagramSegment, error) bool) {
		f, err := os.Open(l.IndexPath)
		if err != nil {
			yield(domain.DiagramSegment{}, fmt.Errorf("open segment index: %w", err))
			return
		}
		defer f.Close()

		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		header, err := reader.Read()
		if err != nil {
			yield(domain.DiagramSegment{}, fmt.Errorf("read segment index header: %w", err))
			return
		}
		cols, err := columnIndex(header)
		if err != nil {
			yield(domain.DiagramSegment{}, err)
			return
		}

		emitted := 0
		line := 1
		for {
			row, err := reader.Read()
			line++
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.DiagramSegment{}, fmt.Errorf("read segment index line %d: %w", line, err))
				return
			}
			if len(row) < len(header) {
				log.Printf("segments skip line=%d reason=short_row fields=%d want=%d", line, len(row), len(header))
				continue
			}
			if row[cols["segment_class"]] != diagramClass {
				continue
			}

			pageFilename := row[cols["page_filename"]]
			pageStem := domain.PageStem(pageFilename)
			if opts.PageFilter != "" && pageStem != opts.PageFilter {
				continue
			}

			seg, err := l.parseRow(row, cols)
			if err != nil {
				log.Printf("segments skip line=%d reason=malformed_row err=%v", line, err)
				continue
			}
			if _, err := os.Stat(seg.CropPath); err != nil {
				log.Printf("segments skip diagram=%s reason=crop_missing path=%s", seg.ID(), seg.CropPath)
				continue
			}

			if !yield(seg, nil) {
				return
			}
			emitted++
			if opts.Limit > 0 && emitted >= opts.Limit {
				return
			}
		}
	}
}

// Collect drains Segments into a slice.
func (l Loader) Collect(opts Options) ([]domain.DiagramSegment, error) {
	var out []domain.DiagramSegment
	for seg, err := range l.Segments(opts) {
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

func (l Loader) parseRow(row []string, cols map[string]int) (domain.DiagramSegment, error) {
	segmentIndex, err := strconv.Atoi(strings.TrimSpace(row[cols["segment_index"]]))
	if err != nil {
		return domain.DiagramSegment{}, fmt.Errorf("segment_index: %w", err)
	}
	bbox := make(map[string]float64, 4)
	for _, name := range []string{"x", "y", "width", "height"} {
		raw := strings.TrimSpace(row[cols[name]])
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.DiagramSegment{}, fmt.Errorf("%s: %w", name, err)
		}
		bbox[name] = v
	}

	pageFilename := row[cols["page_filename"]]
	classID := strings.TrimSpace(row[cols["segment_class_id"]])
	return domain.DiagramSegment{
		ManuscriptID:   row[cols["manuscript_id"]],
		PageFilename:   pageFilename,
		SegmentIndex:   segmentIndex,
		SegmentClassID: classID,
		CropPath:       l.CropPath(domain.PageStem(pageFilename), classID, segmentIndex),
		X:              bbox["x"],
		Y:              bbox["y"],
		Width:          bbox["width"],
		Height:         bbox["height"],
		CanvasURI:      row[cols["canvas_uri"]],
		CategoryLevel1: row[cols["category_level_1"]],
		CategoryLevel2: row[cols["category_level_2"]],
	}, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("segment index missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}
