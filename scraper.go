package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"gorm.io/gorm"
)

const (
	pdgaEventBaseURL = "https://www.pdga.com/tour/event/"

	// The one status string the PDGA uses once results are finalized.
	completedEventStatus = "Event complete; official ratings processed."
)

// A handful of legacy events were entered by hand and have no PDGA page.
// Callers must skip these instead of scraping.
var manualPdgaEventIDs = map[uint]bool{6: true, 80: true, 159: true, 233: true}

// ScrapedEvent is the raw results page for one PDGA event: header fields as
// they appear on the page, plus one table of string-keyed rows per division.
// Row keys are the header cell texts verbatim, including the unlabeled
// round-rating column whose key is "".
type ScrapedEvent struct {
	PdgaEventID     uint
	Status          string
	PlayerCount     string
	Purse           string
	Dates           string
	Location        string
	Name            string
	DivisionResults map[string][]map[string]string
}

// EndDate parses the last token of the dates string, e.g.
// "Mar-2023" in "3-Mar to 5-Mar-2023".
func (se *ScrapedEvent) EndDate() (time.Time, error) {
	fields := strings.Fields(se.Dates)
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("empty dates string")
	}
	return time.Parse("2-Jan-2006", fields[len(fields)-1])
}

// BeginDate reconstructs the begin date. Its fragment omits the year, so the
// year is borrowed from the end date token.
func (se *ScrapedEvent) BeginDate() (time.Time, error) {
	fields := strings.Fields(se.Dates)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("dates string %q has no begin fragment", se.Dates)
	}
	end := fields[len(fields)-1]
	if len(end) < 4 {
		return time.Time{}, fmt.Errorf("dates string %q has no year", se.Dates)
	}
	if len(fields) == 2 {
		// Single-day event: "Date: 5-Mar-2023".
		return se.EndDate()
	}
	return time.Parse("2-Jan-2006", fields[1]+"-"+end[len(end)-4:])
}

func (se *ScrapedEvent) IsComplete() bool {
	return se.Status == completedEventStatus
}

// WinnerByDivision returns the PDGA number on the division's first placement
// row, i.e. the division winner.
func (se *ScrapedEvent) WinnerByDivision(division string) (uint, error) {
	rows, ok := se.DivisionResults[strings.ToUpper(division)]
	if !ok || len(rows) == 0 {
		return 0, fmt.Errorf("no results for division %s in pdga event %d", division, se.PdgaEventID)
	}
	n, err := parseUint(rows[0]["PDGA#"])
	if err != nil {
		return 0, fmt.Errorf("bad PDGA# on winning row of division %s: %w", division, err)
	}
	return n, nil
}

// Location is the resolved city/state/country of a scraped event.
type Location struct {
	City        string
	State       string
	CountryCode string
}

type Scraper struct {
	db      *gorm.DB
	baseURL string
}

func NewScraper(db *gorm.DB) *Scraper {
	return &Scraper{db: db, baseURL: pdgaEventBaseURL}
}

// ScrapeEvent fetches the results page for one PDGA event id and extracts
// the raw header fields and per-division result tables. One network call,
// no retry; a non-success response is a FetchError.
func (s *Scraper) ScrapeEvent(pdgaEventID uint) (*ScrapedEvent, error) {
	url := fmt.Sprintf("%s%d", s.baseURL, pdgaEventID)

	c := colly.NewCollector(
		// Optional: make it look like Chrome
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/115.0.0.0 Safari/537.36"),
	)
	c.Async = true

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Cache-Control", "no-cache")
	})

	se := &ScrapedEvent{
		PdgaEventID:     pdgaEventID,
		DivisionResults: make(map[string][]map[string]string),
	}

	var fetchErr *FetchError
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = &FetchError{URL: url, StatusCode: r.StatusCode, Err: err}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		doc := e.DOM

		se.Name = strings.TrimSpace(doc.Find("h1").First().Text())
		se.Dates = strings.TrimSpace(doc.Find(".tournament-date").First().Text())
		se.Location = strings.TrimSpace(doc.Find(".tournament-location").First().Text())

		// Division codes come from the id attribute of the per-division
		// markers; tables after the first line up with them in order.
		var divisions []string
		doc.Find(".division").Each(func(_ int, sel *goquery.Selection) {
			if id, ok := sel.Attr("id"); ok {
				divisions = append(divisions, id)
			}
		})

		doc.Find("table").Each(func(i int, table *goquery.Selection) {
			if i == 0 {
				// The first table is the event status row.
				dataRow := table.Find("tr").Eq(1)
				se.Status = strings.TrimSpace(dataRow.Find(".status").Text())
				se.PlayerCount = strings.TrimSpace(dataRow.Find(".players").Text())
				se.Purse = strings.TrimSpace(dataRow.Find(".purse").Text())
				return
			}
			if i-1 < len(divisions) {
				se.DivisionResults[divisions[i-1]] = tableToRows(table)
			}
		})
	})

	if err := c.Visit(url); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if se.Name == "" && len(se.DivisionResults) == 0 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("page has no recognizable event markup")}
	}
	return se, nil
}

// ResolveLocation parses "<label>: <city>[, <state>], <country>" and looks
// up the country name against the country table. An unknown country is
// fatal; an unknown state just comes back empty.
func (s *Scraper) ResolveLocation(location string) (Location, error) {
	idx := strings.Index(location, ": ")
	if idx < 0 {
		return Location{}, fmt.Errorf("malformed location string: %q", location)
	}
	parts := strings.Split(location[idx+2:], ", ")
	if len(parts) < 2 {
		return Location{}, fmt.Errorf("malformed location string: %q", location)
	}

	loc := Location{City: parts[0]}
	countryName := parts[len(parts)-1]

	var country Country
	if err := s.db.First(&country, "name = ?", countryName).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return Location{}, &UnknownCountryError{Name: countryName}
		}
		return Location{}, err
	}
	loc.CountryCode = country.Code

	if len(parts) > 2 {
		code, err := resolveRegion(parts[1])
		if err != nil {
			code = ""
		}
		loc.State = code
	}
	return loc, nil
}

// tableToRows turns an HTML results table into one string map per data row,
// keyed by the header cell texts. Unlabeled header cells key as "".
func tableToRows(table *goquery.Selection) []map[string]string {
	var headers []string
	table.Find("tr").First().Find("th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(th.Text()))
	})

	var rows []map[string]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		row := make(map[string]string, len(headers))
		cells.Each(func(j int, td *goquery.Selection) {
			key := ""
			if j < len(headers) {
				key = headers[j]
			}
			row[key] = strings.TrimSpace(td.Text())
		})
		rows = append(rows, row)
	})
	return rows
}
