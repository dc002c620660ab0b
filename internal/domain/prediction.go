package domain

type Level string

const (
	LevelMorphological Level = "morphological"
	LevelIndexical     Level = "indexical"
	LevelSymbolic      Level = "symbolic"
)

var Levels = []Level{LevelMorphological, LevelIndexical, LevelSymbolic}

func ParseLevel(s string) (Level, bool) {
	for _, l := range Levels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// ConsolidatedPrediction holds a decoded JSON value for the morphological
// level and a plain string for the free-text levels. A nil Prediction is a
// response that could not be parsed; the row is kept for coverage accounting.
type ConsolidatedPrediction struct {
	DiagramID   string `json:"diagram_id"`
	Model       string `json:"model"`
	ModelID     string `json:"model_id"`
	Prediction  any    `json:"prediction"`
	RawResponse string `json:"raw_response,omitempty"`
	Timestamp   string `json:"timestamp"`
}

type PredictionsMetadata struct {
	TotalEvaluations int      `json:"total_evaluations"`
	Models           []string `json:"models"`
	EvaluationType   Level    `json:"evaluation_type"`
	Source           string   `json:"source"`
	FormatVersion    string   `json:"format_version"`
}

type PredictionsFile struct {
	Evaluations []ConsolidatedPrediction `json:"evaluations"`
	Metadata    PredictionsMetadata      `json:"metadata"`
}
