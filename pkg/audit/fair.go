package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FairMean is the per-principle mean prepended to a FAIR report.
type FairMean struct {
	F float64 `json:"F"`
	A float64 `json:"A"`
	I float64 `json:"I"`
	R float64 `json:"R"`
}

func (m *FairMean) set(group string, v float64) {
	switch group {
	case "F":
		m.F = v
	case "A":
		m.A = v
	case "I":
		m.I = v
	case "R":
		m.R = v
	}
}

type fairMetric struct {
	Metric string          `json:"metric"`
	Score  json.RawMessage `json:"score"`
}

// NormalizeFair folds a FAIR-Checker payload into a report: scores are summed
// per first letter of the metric identifier, each sum is divided by its
// divisor and {"mean": {...}} is prepended to the untouched metric records.
// A payload lacking any of the F/A/I/R groups is rejected.
func NormalizeFair(payload []byte, divisors map[string]float64) ([]byte, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: FAIR payload is not a JSON array: %w", ErrRemoteService, err)
	}

	sums := make(map[string]float64, len(FairGroups))
	for i, raw := range records {
		var m fairMetric
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: FAIR record %d is not an object: %w", ErrRemoteService, i, err)
		}
		if m.Metric == "" {
			return nil, fmt.Errorf("%w: FAIR record %d has no metric identifier", ErrRemoteService, i)
		}
		score, err := parseScore(m.Score)
		if err != nil {
			return nil, fmt.Errorf("%w: FAIR record %d (%s): %w", ErrRemoteService, i, m.Metric, err)
		}
		r, _ := utf8.DecodeRuneInString(m.Metric)
		sums[string(r)] += score
	}

	var mean FairMean
	for _, group := range FairGroups {
		sum, ok := sums[group]
		if !ok {
			return nil, fmt.Errorf("%w: FAIR payload has no %s metrics", ErrRemoteService, group)
		}
		divisor := divisors[group]
		if divisor <= 0 {
			divisor = 1
		}
		mean.set(group, sum/divisor)
	}

	head, err := json.Marshal(map[string]FairMean{"mean": mean})
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(records)+1)
	out = append(out, head)
	out = append(out, records...)
	return json.Marshal(out)
}

// parseScore accepts JSON numbers and numeric strings.
func parseScore(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing score")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// requireJSONObject accepts a quality payload only when it is a JSON object.
func requireJSONObject(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: quality payload is not a JSON object", ErrRemoteService)
	}
	return trimmed, nil
}
