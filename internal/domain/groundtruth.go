package domain

// Morphology is the shape shared by morphological ground truth and parsed
// predictions. Nil pointers are unanswered fields.
type Morphology struct {
	Cuts  Cuts  `json:"cuts"`
	Lines Lines `json:"lines"`
	Spots Spots `json:"spots"`
}

type Cuts struct {
	Count  *int  `json:"count"`
	Nested *bool `json:"nested"`
}

type Lines struct {
	Count     *int  `json:"count"`
	Branching *bool `json:"branching"`
}

type Spots struct {
	Count  *int     `json:"count"`
	Labels []string `json:"labels"`
}

// Complete reports whether every scalar field is annotated. Labels may be
// an empty list.
func (m Morphology) Complete() bool {
	return m.Cuts.Count != nil && m.Cuts.Nested != nil &&
		m.Lines.Count != nil && m.Lines.Branching != nil &&
		m.Spots.Count != nil
}

type MorphologicalAnnotation struct {
	DiagramID string `json:"diagram_id"`
	Morphology
}

type TextAnnotation struct {
	DiagramID string `json:"diagram_id"`
	Text      string `json:"text"`
}

func IntPtr(v int) *int    { return &v }
func BoolPtr(v bool) *bool { return &v }
