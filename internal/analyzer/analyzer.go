// Package analyzer reads the decision log offline and suggests thresholds.
// Its output is advisory; nothing here changes the live configuration.
package analyzer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"gonum.org/v1/gonum/stat"
)

// ImpostorLabel marks a labeled query whose subject is not enrolled.
const ImpostorLabel = "unknown"

// ErrNoData is returned when the log has no usable rows.
var ErrNoData = errors.New("no usable log rows")

var requiredColumns = []string{"best_d", "margin", "per_face_min", "accepted"}

// Entry is one parsed log row.
type Entry struct {
	BestUserID   string
	BestDistance float64
	Margin       float64
	PerFaceMin   float64
	Accepted     bool
	Reason       string
	TrueLabel    string
}

// Report summarizes a decision log.
type Report struct {
	Entries    int
	Skipped    int
	Accepted   int
	AcceptRate float64

	BestMean float64
	BestStd  float64
	// AcceptedBestMean is NaN when nothing was accepted.
	AcceptedBestMean float64

	Labeled      int
	FalseAccepts int
	FalseRejects int

	Suggested facematch.Thresholds
	Notes     []string
}

// ReadLog parses a decision log. Rows with unparsable numeric or boolean
// fields are skipped and counted; a missing required column is an error.
func ReadLog(r io.Reader) ([]Entry, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, ErrNoData
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", c)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var entries []Entry
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, skipped, fmt.Errorf("read log: %w", err)
		}

		e, err := parseEntry(func(name string) string { return get(rec, name) })
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

func parseEntry(get func(string) string) (Entry, error) {
	var e Entry
	var err error
	if e.BestDistance, err = strconv.ParseFloat(get("best_d"), 64); err != nil {
		return e, fmt.Errorf("best_d: %w", err)
	}
	if e.Margin, err = strconv.ParseFloat(get("margin"), 64); err != nil {
		return e, fmt.Errorf("margin: %w", err)
	}
	if e.PerFaceMin, err = strconv.ParseFloat(get("per_face_min"), 64); err != nil {
		return e, fmt.Errorf("per_face_min: %w", err)
	}
	if e.Accepted, err = strconv.ParseBool(get("accepted")); err != nil {
		return e, fmt.Errorf("accepted: %w", err)
	}
	e.BestUserID = get("best_uid")
	e.Reason = get("reason")
	e.TrueLabel = get("true_label")
	return e, nil
}

// LoadFile reads the decision log at path.
func LoadFile(path string) ([]Entry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	return ReadLog(f)
}

// Analyze computes summary statistics and suggested thresholds:
//
//	user_tol    = min(0.55, p90(best_d))
//	user_margin = max(0.05, p75(margin))
//	face_tol    = min(0.65, p90(per_face_min))
//
// Only finite values enter each statistic.
func Analyze(entries []Entry, skipped int) (*Report, error) {
	if len(entries) == 0 {
		return nil, ErrNoData
	}

	r := &Report{Entries: len(entries), Skipped: skipped, AcceptedBestMean: math.NaN()}

	var best, acceptedBest, margins, faceMins []float64
	for _, e := range entries {
		if isFinite(e.BestDistance) {
			best = append(best, e.BestDistance)
			if e.Accepted {
				acceptedBest = append(acceptedBest, e.BestDistance)
			}
		}
		if isFinite(e.Margin) {
			margins = append(margins, e.Margin)
		}
		if isFinite(e.PerFaceMin) {
			faceMins = append(faceMins, e.PerFaceMin)
		}
		if e.Accepted {
			r.Accepted++
		}

		if e.TrueLabel == "" {
			continue
		}
		r.Labeled++
		switch {
		case e.Accepted && e.BestUserID != e.TrueLabel:
			r.FalseAccepts++
		case !e.Accepted && e.TrueLabel != ImpostorLabel:
			r.FalseRejects++
		}
	}
	r.AcceptRate = float64(r.Accepted) / float64(r.Entries)

	if len(best) > 0 {
		r.BestMean, r.BestStd = stat.PopMeanStdDev(best, nil)
	} else {
		r.BestMean, r.BestStd = math.NaN(), math.NaN()
	}
	if len(acceptedBest) > 0 {
		r.AcceptedBestMean = stat.Mean(acceptedBest, nil)
	}

	r.Suggested.UserTol = constants.AnalyzerUserTolCap
	if q, ok := quantile(0.90, best); ok {
		r.Suggested.UserTol = round3(min(constants.AnalyzerUserTolCap, q))
	} else {
		r.Notes = append(r.Notes, "no finite best_d values; user_tol left at its cap")
	}

	r.Suggested.UserMargin = constants.AnalyzerMarginFloor
	if q, ok := quantile(0.75, margins); ok {
		r.Suggested.UserMargin = round3(max(constants.AnalyzerMarginFloor, q))
	} else {
		r.Notes = append(r.Notes, "no finite margins (fewer than two enrolled users?); user_margin left at its floor")
	}

	r.Suggested.FaceTol = constants.AnalyzerFaceTolCap
	if q, ok := quantile(0.90, faceMins); ok {
		r.Suggested.FaceTol = round3(min(constants.AnalyzerFaceTolCap, q))
	} else {
		r.Notes = append(r.Notes, "no finite per_face_min values; face_tol left at its cap")
	}

	return r, nil
}

// quantile returns the linearly interpolated p-quantile of xs.
func quantile(p float64, xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil), true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
