package analyzer

import (
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// WriteText prints a human readable report.
func (r *Report) WriteText(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("entries: %d (skipped %d)", r.Entries, r.Skipped),
		fmt.Sprintf("accepted: %d (%.1f%%)", r.Accepted, r.AcceptRate*100),
		fmt.Sprintf("best_d mean %.4f std %.4f", r.BestMean, r.BestStd),
	}
	if math.IsNaN(r.AcceptedBestMean) {
		lines = append(lines, "accepted mean best_d: none")
	} else {
		lines = append(lines, fmt.Sprintf("accepted mean best_d: %.4f", r.AcceptedBestMean))
	}
	if r.Labeled > 0 {
		lines = append(lines, fmt.Sprintf("labeled: %d, false accepts: %d, false rejects: %d",
			r.Labeled, r.FalseAccepts, r.FalseRejects))
	}
	lines = append(lines,
		fmt.Sprintf("suggested_user_tol: %.3f", r.Suggested.UserTol),
		fmt.Sprintf("suggested_user_margin: %.3f", r.Suggested.UserMargin),
		fmt.Sprintf("suggested_face_tol: %.3f", r.Suggested.FaceTol),
	)
	for _, n := range r.Notes {
		lines = append(lines, "note: "+n)
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// WriteYAML prints the suggestion in the THRESHOLDS_FILE schema, so the
// output can be reviewed and then used as a thresholds file.
func (r *Report) WriteYAML(w io.Writer) error {
	var doc yaml.Node
	if err := doc.Encode(r.Suggested); err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	doc.HeadComment = fmt.Sprintf("suggested from %d entries (%d skipped), accept rate %.1f%%",
		r.Entries, r.Skipped, r.AcceptRate*100)

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return nil
}
