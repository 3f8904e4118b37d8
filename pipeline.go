package main

import (
	"fmt"
	"sort"
	"time"
)

// The UI offers a handful of designations that collapse into three display
// tiers.
var designationDisplay = map[string]string{
	"DGPT +":            "Elevated",
	"Elite +":           "Elevated",
	"Elite":             "Standard",
	"DGPT Undesignated": "Standard",
	"Silver":            "Standard",
}

// The sentinel a single-choice filter uses for "no constraint".
const filterAll = "All"

// DateRange is an inclusive [Start, End] window on event end dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// FilterSet selects flat result rows. Fields maps a flat column name to its
// accepted values; an empty list or the lone "All" sentinel means the field
// is unconstrained. TimePeriod, when set, bounds event_end_date.
type FilterSet struct {
	Fields     map[string][]string
	TimePeriod *DateRange
}

// FilterRows returns the rows matching every active filter, sorted by event
// end date descending. An empty filter set passes everything through (still
// sorted). The input slice is never mutated.
func FilterRows(rows []map[string]any, f FilterSet) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	out = append(out, rows...)

	for field, accepted := range f.Fields {
		if unconstrained(accepted) {
			continue
		}
		set := make(map[string]bool, len(accepted))
		for _, v := range accepted {
			set[v] = true
		}
		kept := out[:0]
		for _, row := range out {
			if set[stringValue(row[field])] {
				kept = append(kept, row)
			}
		}
		out = kept
	}

	if f.TimePeriod != nil {
		kept := out[:0]
		for _, row := range out {
			if end, ok := row["event_end_date"].(time.Time); ok && f.TimePeriod.contains(end) {
				kept = append(kept, row)
			}
		}
		out = kept
	}

	sort.SliceStable(out, func(i, j int) bool {
		ei, _ := out[i]["event_end_date"].(time.Time)
		ej, _ := out[j]["event_end_date"].(time.Time)
		return ej.Before(ei)
	})
	return out
}

func unconstrained(accepted []string) bool {
	switch len(accepted) {
	case 0:
		return true
	case 1:
		return accepted[0] == filterAll || accepted[0] == ""
	default:
		return false
	}
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Group is one distinct observed value of a grouper field with its count.
type Group struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// GroupCounts counts rows per distinct value of the field, in first-seen
// order. Callers sort as needed.
func GroupCounts(rows []map[string]any, field string) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, row := range rows {
		v := stringValue(row[field])
		if v == "" {
			continue
		}
		if i, ok := index[v]; ok {
			groups[i].Count++
			continue
		}
		index[v] = len(groups)
		groups = append(groups, Group{Value: v, Count: 1})
	}
	return groups
}

// RankedGroup is a group with its standard competition rank.
type RankedGroup struct {
	Value string `json:"value"`
	Count int    `json:"count"`
	Rank  int    `json:"rank"`
}

// RankGroups sorts by count descending and assigns competition ranks: equal
// counts share a rank, and the next distinct count takes its 1-based
// position, not the previous rank plus one. [A:5 B:5 C:3] ranks 1, 1, 3.
func RankGroups(groups []Group) []RankedGroup {
	sorted := make([]Group, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})

	ranked := make([]RankedGroup, len(sorted))
	for i, g := range sorted {
		rank := i + 1
		if i > 0 && g.Count == sorted[i-1].Count {
			rank = ranked[i-1].Rank
		}
		ranked[i] = RankedGroup{Value: g.Value, Count: g.Count, Rank: rank}
	}
	return ranked
}

// TopNWithTies cuts ranked groups at position n, keeping everything ranked
// at or above the rank found there. Boundary ties are all kept, so the
// result can exceed n.
func TopNWithTies(ranked []RankedGroup, n int) []RankedGroup {
	if n <= 0 {
		return nil
	}
	if n >= len(ranked) {
		return ranked
	}
	cutoff := ranked[n-1].Rank
	var out []RankedGroup
	for _, g := range ranked {
		if g.Rank > cutoff {
			break
		}
		out = append(out, g)
	}
	return out
}

// SeasonWins is one player's win count for one season.
type SeasonWins struct {
	Player string `json:"player"`
	Year   int    `json:"year"`
	Wins   int    `json:"wins"`
}

// PlayerYearWins aggregates wins per (player, year) for the subject players,
// producing a per-season series and a running cumulative series. Years run
// ascending within each player; players run alphabetically.
func PlayerYearWins(rows []map[string]any, players []string) (perYear, cumulative []SeasonWins) {
	subjects := make(map[string]bool, len(players))
	for _, p := range players {
		subjects[p] = true
	}

	counts := make(map[string]map[int]int)
	for _, row := range rows {
		name, _ := row["player_full_name"].(string)
		if !subjects[name] {
			continue
		}
		year, ok := row["event_year"].(int)
		if !ok {
			continue
		}
		if counts[name] == nil {
			counts[name] = make(map[int]int)
		}
		counts[name][year]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		years := make([]int, 0, len(counts[name]))
		for y := range counts[name] {
			years = append(years, y)
		}
		sort.Ints(years)

		running := 0
		for _, y := range years {
			wins := counts[name][y]
			running += wins
			perYear = append(perYear, SeasonWins{Player: name, Year: y, Wins: wins})
			cumulative = append(cumulative, SeasonWins{Player: name, Year: y, Wins: running})
		}
	}
	return perYear, cumulative
}

// DecorateRows adds the display columns the leaderboard UI filters on:
// winner and country "with flag" labels and the collapsed designation tier.
// The row maps are decorated in place and the input slice is returned;
// callers needing the undecorated rows must copy first.
func DecorateRows(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		name, _ := row["player_full_name"].(string)
		country, _ := row["country_name"].(string)
		flag, _ := row["country_flag_emoji"].(string)
		row["player_w_flag"] = name + "  " + flag
		row["country_w_flag"] = country + "  " + flag

		designation, _ := row["event_designation"].(string)
		if display, ok := designationDisplay[designation]; ok {
			row["event_designation_map"] = display
		} else {
			row["event_designation_map"] = designation
		}
	}
	return rows
}
