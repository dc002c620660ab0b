package groundtruth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"peircevlm/internal/domain"
	"peircevlm/internal/schema"
)

// Morphological is the scorable morphological ground truth. Incomplete
// entries are listed but never scored.
type Morphological struct {
	Annotations map[string]domain.Morphology
	Incomplete  []string
}

func (m Morphological) IDs() []string {
	return sortedKeys(m.Annotations)
}

// Text is reference text for the indexical and symbolic levels.
type Text struct {
	Annotations map[string]string
	Incomplete  []string
}

func (t Text) IDs() []string {
	return sortedKeys(t.Annotations)
}

// ConsolidatedFile is <gt>/ground_truth_<level>.json; the per-diagram
// directory is <gt>/<level>/.
func ConsolidatedFile(groundTruthDir string, level domain.Level) string {
	return filepath.Join(groundTruthDir, "ground_truth_"+string(level)+".json")
}

func LevelDir(groundTruthDir string, level domain.Level) string {
	return filepath.Join(groundTruthDir, string(level))
}

// ResolvePath prefers the consolidated file and falls back to the
// per-diagram directory.
func ResolvePath(groundTruthDir string, level domain.Level) (string, error) {
	if file := ConsolidatedFile(groundTruthDir, level); isFile(file) {
		return file, nil
	}
	if dir := LevelDir(groundTruthDir, level); isDir(dir) {
		return dir, nil
	}
	return "", fmt.Errorf("no %s ground truth under %s", level, groundTruthDir)
}

type morphologicalFile struct {
	Diagrams []domain.MorphologicalAnnotation `json:"diagrams"`
}

type textFile struct {
	Diagrams []textEntry `json:"diagrams"`
}

type textEntry struct {
	DiagramID string  `json:"diagram_id"`
	Text      *string `json:"text"`
}

// LoadMorphological reads either a consolidated file or a directory of
// <diagram_id>.json files. Documents are schema-checked; entries missing any
// scalar field are logged and left out.
func LoadMorphological(path string) (Morphological, error) {
	out := Morphological{Annotations: map[string]domain.Morphology{}}
	add := func(id string, m domain.Morphology) {
		if !m.Complete() {
			log.Printf("groundtruth warn diagram=%s reason=incomplete", id)
			out.Incomplete = append(out.Incomplete, id)
			return
		}
		out.Annotations[id] = m
	}

	if isDir(path) {
		err := eachDiagramFile(path, func(id string, data []byte) error {
			if err := schema.Check(schema.MorphologicalDiagram, data, id+".json"); err != nil {
				return err
			}
			var m domain.Morphology
			if err := json.Unmarshal(data, &m); err != nil {
				return fmt.Errorf("parse %s.json: %w", id, err)
			}
			add(id, m)
			return nil
		})
		if err != nil {
			return Morphological{}, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return Morphological{}, fmt.Errorf("read ground truth: %w", err)
		}
		if err := schema.Check(schema.MorphologicalFile, data, filepath.Base(path)); err != nil {
			return Morphological{}, err
		}
		var f morphologicalFile
		if err := json.Unmarshal(data, &f); err != nil {
			return Morphological{}, fmt.Errorf("parse ground truth: %w", err)
		}
		for _, d := range f.Diagrams {
			if _, dup := out.Annotations[d.DiagramID]; dup {
				return Morphological{}, fmt.Errorf("duplicate diagram_id %s in %s", d.DiagramID, path)
			}
			add(d.DiagramID, d.Morphology)
		}
	}
	sort.Strings(out.Incomplete)
	log.Printf("groundtruth loaded level=morphological path=%s complete=%d incomplete=%d", path, len(out.Annotations), len(out.Incomplete))
	return out, nil
}

// LoadText reads free-text ground truth. Null or blank text is incomplete.
func LoadText(path string) (Text, error) {
	out := Text{Annotations: map[string]string{}}
	add := func(id string, text *string) {
		if text == nil || strings.TrimSpace(*text) == "" {
			log.Printf("groundtruth warn diagram=%s reason=incomplete", id)
			out.Incomplete = append(out.Incomplete, id)
			return
		}
		out.Annotations[id] = *text
	}

	if isDir(path) {
		err := eachDiagramFile(path, func(id string, data []byte) error {
			if err := schema.Check(schema.TextDiagram, data, id+".json"); err != nil {
				return err
			}
			var e textEntry
			if err := json.Unmarshal(data, &e); err != nil {
				return fmt.Errorf("parse %s.json: %w", id, err)
			}
			add(id, e.Text)
			return nil
		})
		if err != nil {
			return Text{}, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return Text{}, fmt.Errorf("read ground truth: %w", err)
		}
		if err := schema.Check(schema.TextFile, data, filepath.Base(path)); err != nil {
			return Text{}, err
		}
		var f textFile
		if err := json.Unmarshal(data, &f); err != nil {
			return Text{}, fmt.Errorf("parse ground truth: %w", err)
		}
		for _, d := range f.Diagrams {
			add(d.DiagramID, d.Text)
		}
	}
	sort.Strings(out.Incomplete)
	log.Printf("groundtruth loaded level=text path=%s complete=%d incomplete=%d", path, len(out.Annotations), len(out.Incomplete))
	return out, nil
}

// LoadPredictions reads and schema-checks a consolidated predictions file.
func LoadPredictions(path string) (domain.PredictionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PredictionsFile{}, fmt.Errorf("read predictions: %w", err)
	}
	if err := schema.Check(schema.Predictions, data, filepath.Base(path)); err != nil {
		return domain.PredictionsFile{}, err
	}
	var f domain.PredictionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.PredictionsFile{}, fmt.Errorf("parse predictions: %w", err)
	}
	return f, nil
}

func eachDiagramFile(dir string, fn func(id string, data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read ground truth dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if err := fn(strings.TrimSuffix(e.Name(), ".json"), data); err != nil {
			return err
		}
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err == nil && info.IsDir()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
