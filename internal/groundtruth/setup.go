package groundtruth

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"peircevlm/internal/domain"
)

type SetupStats struct {
	Diagrams      int
	ImagesCopied  int
	TemplatesMade int
	MissingImages []string
}

type runResult struct {
	CropPath string `json:"crop_path"`
}

// Setup creates <gt>/<level>/<diagram_id>.json templates and copies each
// crop next to them for every result file in runDir. Existing files are
// never overwritten, so annotators can re-run it safely.
func Setup(runDir, groundTruthDir string) (SetupStats, error) {
	var stats SetupStats
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return stats, fmt.Errorf("read run dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" && e.Name() != "summary.json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, level := range domain.Levels {
		if err := os.MkdirAll(LevelDir(groundTruthDir, level), 0o755); err != nil {
			return stats, err
		}
	}

	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		data, err := os.ReadFile(filepath.Join(runDir, name))
		if err != nil {
			return stats, err
		}
		var r runResult
		if err := json.Unmarshal(data, &r); err != nil {
			log.Printf("groundtruth setup warn file=%s err=%v", name, err)
			continue
		}
		if !isFile(r.CropPath) {
			log.Printf("groundtruth setup warn diagram=%s reason=image_missing path=%s", id, r.CropPath)
			stats.MissingImages = append(stats.MissingImages, id)
			continue
		}
		stats.Diagrams++

		for _, level := range domain.Levels {
			dir := LevelDir(groundTruthDir, level)
			copied, err := copyIfAbsent(r.CropPath, filepath.Join(dir, id+filepath.Ext(r.CropPath)))
			if err != nil {
				return stats, err
			}
			if copied {
				stats.ImagesCopied++
			}
			made, err := writeIfAbsent(filepath.Join(dir, id+".json"), Template(level))
			if err != nil {
				return stats, err
			}
			if made {
				stats.TemplatesMade++
			}
		}
	}
	log.Printf("groundtruth setup diagrams=%d images=%d templates=%d missing=%d dir=%s",
		stats.Diagrams, stats.ImagesCopied, stats.TemplatesMade, len(stats.MissingImages), groundTruthDir)
	return stats, nil
}

// Template is the blank annotation for a level: nulls to fill in for the
// morphological level, a null text otherwise.
func Template(level domain.Level) any {
	if level == domain.LevelMorphological {
		return domain.Morphology{Spots: domain.Spots{Labels: []string{}}}
	}
	return map[string]any{"text": nil}
}

func writeIfAbsent(path string, v any) (bool, error) {
	if isFile(path) {
		return false, nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(path, append(data, '\n'), 0o644)
}

func copyIfAbsent(src, dst string) (bool, error) {
	if isFile(dst) {
		return false, nil
	}
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, err
	}
	return true, out.Close()
}
