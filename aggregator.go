package main

import (
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// NestedResult is one completed event joined with its winner, tournament,
// and the winner's country, each rendered as its own keyed sub-record.
type NestedResult map[string]map[string]any

// EventResults is the denormalized result set behind the leaderboard views.
type EventResults struct {
	Results []NestedResult
}

// LoadEventResults reads every event with its winner, tournament, and the
// winner's country. The scoped db handle is the only session used; nothing
// here holds state beyond the returned value.
func LoadEventResults(db *gorm.DB) (*EventResults, error) {
	var events []Event
	err := db.Preload("Winner").Preload("Winner.Country").
		Preload("Tourney").Preload("Country").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	results := make([]NestedResult, 0, len(events))
	for i := range events {
		e := &events[i]
		results = append(results, NestedResult{
			"event":   e.kv(),
			"player":  e.Winner.kv(),
			"tourney": e.Tourney.kv(),
			"country": e.Winner.Country.kv(),
		})
	}
	return &EventResults{Results: results}, nil
}

// Flat collapses each nested record into a single map with every key
// prefixed by its entity name (event_end_date, player_full_name, ...).
// The prefix is mandatory: entities share column names, e.g. "name" exists
// on both tournaments and countries.
func (er *EventResults) Flat() []map[string]any {
	flattened := make([]map[string]any, 0, len(er.Results))
	for _, nested := range er.Results {
		flat := make(map[string]any)
		for entity, fields := range nested {
			for k, v := range fields {
				flat[entity+"_"+k] = v
			}
		}
		flattened = append(flattened, flat)
	}
	return flattened
}

// Nest is the inverse of Flat for a single record: keys split on the first
// underscore back into entity sub-records.
func Nest(flat map[string]any) NestedResult {
	nested := make(NestedResult)
	for k, v := range flat {
		parts := strings.SplitN(k, "_", 2)
		if len(parts) != 2 {
			continue
		}
		entity, field := parts[0], parts[1]
		if nested[entity] == nil {
			nested[entity] = make(map[string]any)
		}
		nested[entity][field] = v
	}
	return nested
}

// Winners returns the distinct winner names, sorted.
func (er *EventResults) Winners() []string {
	return er.distinctSorted("player_full_name")
}

// TourneyNames returns the distinct tournament names, sorted.
func (er *EventResults) TourneyNames() []string {
	return er.distinctSorted("tourney_name")
}

func (er *EventResults) distinctSorted(field string) []string {
	seen := make(map[string]bool)
	for _, row := range er.Flat() {
		if s, ok := row[field].(string); ok && s != "" {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LastEvent returns the flat record of the most recently concluded event.
// Ties on end date break arbitrarily; callers must not depend on the order.
func (er *EventResults) LastEvent() map[string]any {
	var last map[string]any
	var lastEnd time.Time
	for _, row := range er.Flat() {
		end, ok := row["event_end_date"].(time.Time)
		if !ok {
			continue
		}
		if last == nil || end.After(lastEnd) {
			last, lastEnd = row, end
		}
	}
	return last
}
