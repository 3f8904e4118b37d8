package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
)

// --------- Parameters (flags) ---------
var (
	urlFlag     = flag.String("url", "http://localhost:8080/api/results_flat", "flat results URL")
	fileFlag    = flag.String("file", "", "read flat results from a JSON file instead of the URL")
	grouperFlag = flag.String("grouper", "player_full_name", "field to group wins by")
	topFlag     = flag.Int("top", 10, "cutoff; boundary ties are all kept")
)

// --------- Input model ---------
// One flattened event result; only the grouper field is read, so the rows
// stay schemaless here.
type row map[string]any

// --------- Output model ---------
type standing struct {
	Rank  int
	Value string
	Wins  int
}

func main() {
	flag.Parse()

	rows, err := loadRows()
	if err != nil {
		log.Fatal(err)
	}

	standings := computeStandings(rows, *grouperFlag)
	standings = cutWithTies(standings, *topFlag)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tWINNER\tWINS")
	for _, s := range standings {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", s.Rank, s.Value, s.Wins)
	}
	tw.Flush()
}

func loadRows() ([]row, error) {
	var rows []row
	if *fileFlag != "" {
		b, err := os.ReadFile(*fileFlag)
		if err != nil {
			return nil, err
		}
		return rows, json.Unmarshal(b, &rows)
	}

	resp, err := http.Get(*urlFlag)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status code %d", *urlFlag, resp.StatusCode)
	}
	return rows, json.NewDecoder(resp.Body).Decode(&rows)
}

// computeStandings counts rows per grouper value and assigns competition
// ranks: equal win counts share a rank, the next distinct count takes its
// 1-based position.
func computeStandings(rows []row, grouper string) []standing {
	counts := make(map[string]int)
	for _, r := range rows {
		if v, ok := r[grouper].(string); ok && v != "" {
			counts[v]++
		}
	}

	standings := make([]standing, 0, len(counts))
	for v, n := range counts {
		standings = append(standings, standing{Value: v, Wins: n})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Wins != standings[j].Wins {
			return standings[i].Wins > standings[j].Wins
		}
		return standings[i].Value < standings[j].Value
	})

	for i := range standings {
		if i > 0 && standings[i].Wins == standings[i-1].Wins {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}
	return standings
}

func cutWithTies(standings []standing, n int) []standing {
	if n <= 0 || n >= len(standings) {
		return standings
	}
	cutoff := standings[n-1].Rank
	for i, s := range standings {
		if s.Rank > cutoff {
			return standings[:i]
		}
	}
	return standings
}
