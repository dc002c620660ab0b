package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"peircevlm/internal/domain"
	"peircevlm/internal/metrics"
)

const rule = "============================================================"

func PrintMorphological(w io.Writer, r metrics.MorphologicalReport) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "MORPHOLOGICAL EVALUATION METRICS (%d ground truth diagrams)\n", r.GroundTruthTotal)
	fmt.Fprintln(w, rule)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"MODEL", "EVALUATED", "COVERAGE", "EXACT", "AVG"}
	for _, f := range metrics.Fields {
		header = append(header, strings.ToUpper(string(f)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, m := range r.Models {
		row := []string{m.Model, strconv.Itoa(m.Evaluated), pct(m.Coverage), pct(m.ExactMatch), pct(m.AvgAccuracy)}
		for _, f := range metrics.Fields {
			row = append(row, pct(m.FieldAccuracy[f]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()

	if len(r.Models) > 0 && r.Models[0].Evaluated > 0 {
		best := r.Models[0]
		fmt.Fprintf(w, "\nBest performing model: %s (%s%% exact match)\n", best.Model, pct(best.ExactMatch))
	}
	if len(r.BestPerField) > 0 {
		fmt.Fprintln(w, "\nBest per field:")
		for _, l := range r.BestPerField {
			fmt.Fprintf(w, "  %s: %s (%s%%)\n", titleCase(string(l.Field)), l.Model, pct(l.Accuracy))
		}
	}

	if r.Unparseable > 0 {
		fmt.Fprintf(w, "\nUnparseable predictions (not evaluated): %d\n", r.Unparseable)
	}
	if len(r.Disagreements) == 0 {
		return
	}
	fmt.Fprintf(w, "\nDisagreements with ground truth: %d\n", len(r.Disagreements))
	last := ""
	for _, d := range r.Disagreements {
		if d.DiagramID != last {
			fmt.Fprintf(w, "\n%s:\n", d.DiagramID)
			last = d.DiagramID
		}
		fmt.Fprintf(w, "  %s %s: predicted=%s expected=%s\n",
			d.Model, d.Field, metrics.FormatValue(d.Predicted), metrics.FormatValue(d.Expected))
	}
}

func PrintText(w io.Writer, r metrics.TextReport) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s EVALUATION METRICS (%d ground truth diagrams)\n", strings.ToUpper(string(r.Level)), r.GroundTruthTotal)
	fmt.Fprintln(w, rule)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tEVALUATED\tCOVERAGE\tCHAR_SIMILARITY\tWORD_ACCURACY")
	for _, m := range r.Models {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", m.Model, m.Evaluated, pct(m.Coverage), pct(m.CharSimilarity), pct(m.WordAccuracy))
	}
	tw.Flush()
	if r.Missing > 0 {
		fmt.Fprintf(w, "\nEmpty predictions (not evaluated): %d\n", r.Missing)
	}
}

func PrintAgreement(w io.Writer, r metrics.AgreementReport) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "AGREEMENT ANALYSIS")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total diagrams with multiple model evaluations: %d\n", len(r.Diagrams))
	for _, f := range metrics.AgreementFields {
		fmt.Fprintf(w, "%s count perfect agreement: %d of %d (%s%%)\n",
			titleCase(agreementName(f)), r.Agreed[f], r.Compared[f], pct(r.Percent(f)))
	}

	disagreements := r.Disagreements()
	if len(disagreements) == 0 {
		fmt.Fprintln(w, "\nNo disagreements found.")
		return
	}
	fmt.Fprintf(w, "\nFound %d diagrams with disagreements:\n", len(disagreements))
	for _, d := range disagreements {
		fmt.Fprintf(w, "\n%s:\n", d.DiagramID)
		for _, f := range metrics.AgreementFields {
			if d.Disagrees(f) {
				fmt.Fprintf(w, "  %s: %s\n", titleCase(agreementName(f)), d.Values[f])
			}
		}
	}
}

// PrintRuns lists ledger rows newest first.
func PrintRuns(w io.Writer, runs []domain.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tPROMPT\tSTARTED\tFINISHED\tTOTAL\tOK\tFAILED\tDIR")
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			shortID(r.ID), r.ModelKey, r.PromptKey, r.StartedAt.Local().Format(time.DateTime), finished,
			r.Total, r.Successful, r.Failed, r.RunDir)
	}
	tw.Flush()
}

func PrintModels(w io.Writer, models map[string]domain.ModelConfig) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tAPI FAMILY\tMODEL ID\tMAX TOKENS")
	for _, name := range domain.SortedModelNames(models) {
		m := models[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", name, m.Label(), m.APIFamily, m.ModelID, m.MaxTokens)
	}
	tw.Flush()
}

// PrintMissing reports completed/expected and lists the missing ids.
func PrintMissing(w io.Writer, model, runDir string, completed, expected int, missing []string) {
	fmt.Fprintf(w, "%s: %d/%d completed in %s\n", model, completed, expected, runDir)
	if len(missing) == 0 {
		fmt.Fprintln(w, "No missing evaluations.")
		return
	}
	fmt.Fprintf(w, "Missing %d:\n", len(missing))
	for _, id := range missing {
		fmt.Fprintf(w, "  %s\n", id)
	}
}

func agreementName(f metrics.Field) string {
	return strings.TrimSuffix(string(f), "_count")
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
