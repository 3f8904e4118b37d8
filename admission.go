package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventInput is a proposed event. The winner and tournament may be given
// either as resolved ids or as names (the admin form path); exactly one of
// each pair must be set.
type EventInput struct {
	GoverningBody string    `json:"governingBody"`
	Designation   string    `json:"designation"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	City          string    `json:"city"`
	State         string    `json:"state"`
	CountryCode   string    `json:"countryCode"`
	PdgaEventID   uint      `json:"pdgaEventId"`

	WinnerID   uint   `json:"winnerId"`
	WinnerName string `json:"winnerName"`

	TourneyID   uint   `json:"tourneyId"`
	TourneyName string `json:"tourneyName"`

	// Cleaned placement rows for the winner's division, stored on the event.
	Results []map[string]any `json:"results"`
}

// EventCandidate is a validated, not-yet-persisted event. Construction runs
// the full validation sequence against current reference data; a candidate
// that exists has already passed it. Admit writes it exactly once.
//
// The duplicate check is advisory: it reads then writes without a lock, so
// two concurrent admissions of the same key can race. Admissions come from a
// single admin session, which makes that acceptable here.
type EventCandidate struct {
	GoverningBody string
	Designation   string
	StartDate     time.Time
	EndDate       time.Time
	City          string
	State         string
	CountryCode   string
	PdgaEventID   uint
	WinnerID      uint
	TourneyID     uint
	Results       []map[string]any

	winnerDivision string
	tourneyName    string
	admitted       bool
}

// NewEventCandidate validates in a fixed order, aborting on the first
// failure: winner, tournament, duplicate, governing body, date order.
func NewEventCandidate(db *gorm.DB, in EventInput) (*EventCandidate, error) {
	c := &EventCandidate{
		GoverningBody: in.GoverningBody,
		Designation:   in.Designation,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		City:          in.City,
		State:         in.State,
		CountryCode:   in.CountryCode,
		PdgaEventID:   in.PdgaEventID,
		Results:       in.Results,
	}
	if c.GoverningBody == "" {
		c.GoverningBody = governingBodyFor(in.Designation)
	}

	winner, err := resolveWinner(db, in)
	if err != nil {
		return nil, err
	}
	c.WinnerID = winner.PdgaID
	c.winnerDivision = winner.Division

	tourney, err := resolveTourney(db, in)
	if err != nil {
		return nil, err
	}
	c.TourneyID = tourney.ID
	c.tourneyName = tourney.Name

	if err := checkDuplicate(db, c); err != nil {
		return nil, err
	}

	if err := checkGoverningBody(db, c.GoverningBody); err != nil {
		return nil, err
	}

	if c.EndDate.Before(c.StartDate) {
		return nil, &ValidationError{
			Field:  "endDate",
			Reason: fmt.Sprintf("end date %s precedes start date %s", c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02")),
		}
	}

	return c, nil
}

// WinnerDivision is resolved transitively from the winner during validation.
func (c *EventCandidate) WinnerDivision() string { return c.winnerDivision }

// TourneyName is the current display name of the resolved tournament.
func (c *EventCandidate) TourneyName() string { return c.tourneyName }

// Record is the persistence row the candidate derives.
func (c *EventCandidate) Record() (*Event, error) {
	var payload datatypes.JSON
	if c.Results != nil {
		b, err := json.Marshal(c.Results)
		if err != nil {
			return nil, fmt.Errorf("marshaling results payload: %w", err)
		}
		payload = b
	}
	return &Event{
		GoverningBody: c.GoverningBody,
		Designation:   c.Designation,
		StartDate:     datatypes.Date(c.StartDate),
		EndDate:       datatypes.Date(c.EndDate),
		WinnerID:      c.WinnerID,
		TourneyID:     c.TourneyID,
		City:          c.City,
		State:         c.State,
		CountryCode:   c.CountryCode,
		PdgaEventID:   c.PdgaEventID,
		Results:       payload,
	}, nil
}

// Admit inserts the event. A candidate admits at most once; write failures
// are surfaced to the caller, not retried.
func (c *EventCandidate) Admit(db *gorm.DB) (*Event, error) {
	if c.admitted {
		return nil, errors.New("candidate has already been admitted")
	}
	event, err := c.Record()
	if err != nil {
		return nil, err
	}
	if err := db.Create(event).Error; err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	c.admitted = true
	return event, nil
}

func governingBodyFor(designation string) string {
	if designation == "Major" {
		return "PDGA"
	}
	return "DGPT"
}

func resolveWinner(db *gorm.DB, in EventInput) (*Player, error) {
	if in.WinnerID != 0 {
		var p Player
		if err := db.First(&p, "pdga_id = ?", in.WinnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &ValidationError{
					Field:  "winner",
					Reason: fmt.Sprintf("player with PDGA# %d doesn't exist yet; create the player and re-run", in.WinnerID),
				}
			}
			return nil, err
		}
		return &p, nil
	}

	var players []Player
	if err := db.Find(&players).Error; err != nil {
		return nil, err
	}
	var matches []Player
	for _, p := range players {
		if p.FullName() == in.WinnerName {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, &ValidationError{
			Field:  "winner",
			Reason: fmt.Sprintf("no player named %q", in.WinnerName),
		}
	default:
		return nil, &ValidationError{
			Field:  "winner",
			Reason: fmt.Sprintf("%d players named %q; resolve by PDGA# instead", len(matches), in.WinnerName),
		}
	}
}

func resolveTourney(db *gorm.DB, in EventInput) (*Tournament, error) {
	if in.TourneyID != 0 {
		var t Tournament
		if err := db.First(&t, in.TourneyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &ValidationError{
					Field:  "tourney",
					Reason: fmt.Sprintf("can't find tourney ID %d; create the tournament and re-run", in.TourneyID),
				}
			}
			return nil, err
		}
		return &t, nil
	}

	// Name resolution only considers currently-effective tournaments;
	// expired names belong to renamed predecessors.
	var matches []Tournament
	if err := db.Where("name = ? AND expiry_date IS NULL", in.TourneyName).Find(&matches).Error; err != nil {
		return nil, err
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, &ValidationError{
			Field:  "tourney",
			Reason: fmt.Sprintf("no tournament named %q", in.TourneyName),
		}
	default:
		return nil, &ValidationError{
			Field:  "tourney",
			Reason: fmt.Sprintf("%d tournaments named %q; resolve by id instead", len(matches), in.TourneyName),
		}
	}
}

// checkDuplicate enforces the admission invariant: no two events for the
// same tournament, end date, and division. Division is derived from each
// existing event's own winner, since one tournament-date pair legitimately
// hosts one event per division.
func checkDuplicate(db *gorm.DB, c *EventCandidate) error {
	var existing []Event
	err := db.Preload("Winner").
		Where("tourney_id = ? AND end_date = ?", c.TourneyID, datatypes.Date(c.EndDate)).
		Find(&existing).Error
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Winner.Division == c.winnerDivision {
			return &ValidationError{
				Field: "event",
				Reason: fmt.Sprintf("tournament ID %d for %s ending on %s already exists",
					c.TourneyID, c.winnerDivision, c.EndDate.Format("2006-01-02")),
			}
		}
	}
	return nil
}

// A governing body is legitimate once at least one existing event has used
// it: closed-set-by-example, not a fixed enumeration.
func checkGoverningBody(db *gorm.DB, body string) error {
	var known []string
	if err := db.Model(&Event{}).Distinct().Pluck("governing_body", &known).Error; err != nil {
		return err
	}
	for _, k := range known {
		if k == body {
			return nil
		}
	}
	return &ValidationError{
		Field:  "governingBody",
		Reason: fmt.Sprintf("%s is not a legitimate governing body", body),
	}
}

// ApplyDivisionResults updates the results payload on an existing event for
// one division, keying through the winner's division. Only finalized source
// pages are applied.
func ApplyDivisionResults(db *gorm.DB, se *ScrapedEvent, division string) error {
	if !se.IsComplete() {
		return &NotCompleteError{PdgaEventID: se.PdgaEventID, Status: se.Status}
	}

	cleaned := CleanDivisionResults(se.DivisionResults)
	rows, ok := cleaned[division]
	if !ok {
		return fmt.Errorf("no %s results in pdga event %d", division, se.PdgaEventID)
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshaling results payload: %w", err)
	}

	return db.Model(&Event{}).
		Where("pdga_event_id = ? AND winner_id IN (?)", se.PdgaEventID,
			db.Model(&Player{}).Select("pdga_id").Where("division = ?", division)).
		Update("results", datatypes.JSON(b)).Error
}

// UnloadedEvent is one pending piece of ingestion work: a season stop that
// has concluded but has no event row for the given division yet.
type UnloadedEvent struct {
	PdgaEventID uint   `json:"pdgaEventId"`
	Designation string `json:"designation"`
	TourneyID   uint   `json:"tourneyId"`
	Division    string `json:"division"`
}

// CompletedUnloadedEvents sweeps the season schedule for concluded stops
// whose pdga event id isn't loaded yet, exploded per division.
func CompletedUnloadedEvents(db *gorm.DB, today time.Time) ([]UnloadedEvent, error) {
	var seasons []Season
	if err := db.Find(&seasons).Error; err != nil {
		return nil, err
	}
	var loadedIDs []uint
	if err := db.Model(&Event{}).Pluck("pdga_event_id", &loadedIDs).Error; err != nil {
		return nil, err
	}
	loaded := make(map[uint]bool, len(loadedIDs))
	for _, id := range loadedIDs {
		loaded[id] = true
	}

	var pending []UnloadedEvent
	for _, se := range seasons {
		if !time.Time(se.EndDate).Before(today) || loaded[se.PdgaEventID] {
			continue
		}
		for _, div := range se.Divisions() {
			pending = append(pending, UnloadedEvent{
				PdgaEventID: se.PdgaEventID,
				Designation: se.EventDesignation,
				TourneyID:   se.TourneyID,
				Division:    div,
			})
		}
	}
	return pending, nil
}

// LoadCompletedEvents scrapes, validates, and admits every pending event.
// One bad event doesn't abort the batch: its error is collected and the
// sweep moves on.
func LoadCompletedEvents(db *gorm.DB, scraper *Scraper, today time.Time) (loaded int, errs []error) {
	pending, err := CompletedUnloadedEvents(db, today)
	if err != nil {
		return 0, []error{err}
	}
	for _, ue := range pending {
		if manualPdgaEventIDs[ue.PdgaEventID] {
			continue
		}
		if err := loadOneEvent(db, scraper, ue); err != nil {
			log.Printf("Skipping pdga event %d (%s): %v", ue.PdgaEventID, ue.Division, err)
			errs = append(errs, fmt.Errorf("pdga event %d (%s): %w", ue.PdgaEventID, ue.Division, err))
			continue
		}
		loaded++
	}
	return loaded, errs
}

func loadOneEvent(db *gorm.DB, scraper *Scraper, ue UnloadedEvent) error {
	se, err := scraper.ScrapeEvent(ue.PdgaEventID)
	if err != nil {
		return err
	}
	if !se.IsComplete() {
		return &NotCompleteError{PdgaEventID: se.PdgaEventID, Status: se.Status}
	}

	winnerID, err := se.WinnerByDivision(ue.Division)
	if err != nil {
		return err
	}
	begin, err := se.BeginDate()
	if err != nil {
		return err
	}
	end, err := se.EndDate()
	if err != nil {
		return err
	}
	loc, err := scraper.ResolveLocation(se.Location)
	if err != nil {
		return err
	}

	candidate, err := NewEventCandidate(db, EventInput{
		Designation: ue.Designation,
		StartDate:   begin,
		EndDate:     end,
		City:        loc.City,
		State:       loc.State,
		CountryCode: loc.CountryCode,
		PdgaEventID: ue.PdgaEventID,
		WinnerID:    winnerID,
		TourneyID:   ue.TourneyID,
		Results:     CleanDivisionResults(se.DivisionResults)[ue.Division],
	})
	if err != nil {
		return err
	}
	_, err = candidate.Admit(db)
	return err
}
