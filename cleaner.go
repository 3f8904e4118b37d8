package main

import (
	"fmt"
	"strconv"
	"strings"
)

// The two top-tier divisions tracked here. Results for any other division
// are left untouched by the cleaner.
var trackedDivisions = map[string]bool{"MPO": true, "FPO": true}

// Columns coerced to int. A parse failure is an expected outcome (DNF rows
// carry text in the Place column) and becomes a null, never an error.
var intColumns = map[string]bool{
	"Place": true, "PDGA#": true, "Rating": true, "Par": true,
	"Rd1": true, "Rd2": true, "Rd3": true, "Rd4": true,
	"Finals": true, "Total": true,
}

// CleanDivisionResults coerces the raw MPO/FPO placement rows into typed
// values per the placement record model. It is total over its input: no
// field combination errors.
func CleanDivisionResults(divisionResults map[string][]map[string]string) map[string][]map[string]any {
	cleaned := make(map[string][]map[string]any, len(divisionResults))
	for division, rows := range divisionResults {
		if !trackedDivisions[division] {
			continue
		}
		cleanRows := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			cleanRows = append(cleanRows, cleanPlacementRow(row))
		}
		cleaned[division] = cleanRows
	}
	return cleaned
}

func cleanPlacementRow(row map[string]string) map[string]any {
	clean := make(map[string]any, len(row))
	for k, v := range row {
		switch {
		case k == "":
			// Unlabeled round-rating columns are dropped.
		case k == "Par" && v == "E":
			clean[k] = 0
		case intColumns[k]:
			clean[k] = intOrNil(v)
		case k == "Points":
			clean[k] = floatOrZero(v)
		case k == "Prize":
			clean[k] = dollarsOrZero(v)
		default:
			clean[k] = v
		}
	}
	return clean
}

// intOrNil is the try-parse combinator behind the DNF handling: only a
// failed integer parse is swallowed, as a nil.
func intOrNil(s string) any {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return n
}

func floatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// dollarsOrZero parses currency-formatted text like "$1,250".
func dollarsOrZero(s string) float64 {
	stripped := strings.NewReplacer("$", "", ",", "").Replace(s)
	return floatOrZero(stripped)
}

func parseUint(s string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return uint(n), nil
}
