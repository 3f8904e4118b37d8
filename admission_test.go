package main

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// seedReferenceData loads the countries, players, tournaments, and a couple
// of prior events the admission checks validate against.
func seedReferenceData(t *testing.T, db *gorm.DB) {
	t.Helper()

	assert.NoError(t, db.Create(&Country{Code: "US", Name: "United States", FlagEmoji: "🇺🇸"}).Error)
	assert.NoError(t, db.Create(&Country{Code: "EE", Name: "Estonia", FlagEmoji: "🇪🇪"}).Error)

	players := []Player{
		{PdgaID: 38008, FirstName: "Ricky", LastName: "Wysocki", Division: "MPO", CountryCode: "US"},
		{PdgaID: 27523, FirstName: "Paul", LastName: "McBeth", Division: "MPO", CountryCode: "US"},
		{PdgaID: 73986, FirstName: "Kristin", LastName: "Tattar", Division: "FPO", CountryCode: "EE"},
	}
	for i := range players {
		assert.NoError(t, db.Create(&players[i]).Error)
	}

	tourneys := []Tournament{
		{ID: 1, ParentID: 1, Name: "Waco Annual Charity Open",
			EffectiveDate: datatypes.Date(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
			City:          "Waco", State: "TX", CountryCode: "US"},
		{ID: 2, ParentID: 2, Name: "Jonesboro Open",
			EffectiveDate: datatypes.Date(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
			City:          "Jonesboro", State: "AR", CountryCode: "US"},
	}
	for i := range tourneys {
		assert.NoError(t, db.Create(&tourneys[i]).Error)
	}

	// Two prior seasons' worth of events establish DGPT and PDGA as the
	// known governing bodies.
	priors := []Event{
		{GoverningBody: "DGPT", Designation: "Elite",
			StartDate: datatypes.Date(time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)),
			EndDate:   datatypes.Date(time.Date(2022, 3, 6, 0, 0, 0, 0, time.UTC)),
			WinnerID:  38008, TourneyID: 1, City: "Waco", State: "TX", CountryCode: "US", PdgaEventID: 55000},
		{GoverningBody: "PDGA", Designation: "Major",
			StartDate: datatypes.Date(time.Date(2022, 4, 22, 0, 0, 0, 0, time.UTC)),
			EndDate:   datatypes.Date(time.Date(2022, 4, 24, 0, 0, 0, 0, time.UTC)),
			WinnerID:  73986, TourneyID: 2, City: "Jonesboro", State: "AR", CountryCode: "US", PdgaEventID: 55001},
	}
	for i := range priors {
		assert.NoError(t, db.Create(&priors[i]).Error)
	}
}

func Test_NewEventCandidateAndAdmit(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	candidate, err := NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		City:        "Waco",
		State:       "TX",
		CountryCode: "US",
		PdgaEventID: 65206,
		WinnerName:  "Paul McBeth",
		TourneyName: "Waco Annual Charity Open",
		Results:     []map[string]any{{"Place": 1, "Name": "Paul McBeth"}},
	})
	assert.NoError(t, err)
	assert.Equal(t, candidate.GoverningBody, "DGPT")
	assert.Equal(t, candidate.WinnerID, uint(27523))
	assert.Equal(t, candidate.WinnerDivision(), "MPO")
	assert.Equal(t, candidate.TourneyID, uint(1))
	assert.Equal(t, candidate.TourneyName(), "Waco Annual Charity Open")

	event, err := candidate.Admit(db)
	assert.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.NotEmpty(t, event.Results)

	var count int64
	assert.NoError(t, db.Model(&Event{}).Where("pdga_event_id = ?", 65206).Count(&count).Error)
	assert.Equal(t, count, int64(1))

	// A candidate only admits once.
	_, err = candidate.Admit(db)
	assert.Error(t, err)

	// The admitted event now blocks a second MPO event for the same
	// tournament and end date.
	_, err = NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerID:    38008,
		TourneyID:   1,
	})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "event")

	// A different division on the same tournament and end date is fine.
	fpo, err := NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerID:    73986,
		TourneyID:   1,
	})
	assert.NoError(t, err)
	assert.Equal(t, fpo.WinnerDivision(), "FPO")
}

func Test_NewEventCandidateUnknownWinner(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	var before int64
	assert.NoError(t, db.Model(&Event{}).Count(&before).Error)

	_, err = NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerName:  "Nobody Inparticular",
		TourneyName: "Waco Annual Charity Open",
	})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "winner")
	assert.Contains(t, vErr.Reason, "Nobody Inparticular")

	_, err = NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerID:    424242,
		TourneyID:   1,
	})
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "winner")

	// Validation failures never write.
	var after int64
	assert.NoError(t, db.Model(&Event{}).Count(&after).Error)
	assert.Equal(t, after, before)
}

func Test_NewEventCandidateAmbiguousWinner(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	// A second Paul McBeth makes the name unresolvable.
	assert.NoError(t, db.Create(&Player{PdgaID: 500, FirstName: "Paul", LastName: "McBeth", Division: "MPO", CountryCode: "US"}).Error)

	_, err = NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerName:  "Paul McBeth",
		TourneyName: "Waco Annual Charity Open",
	})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "winner")
	assert.Contains(t, vErr.Reason, "2 players")
}

func Test_NewEventCandidateUnknownTourney(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	_, err = NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerID:    38008,
		TourneyName: "Made Up Invitational",
	})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "tourney")
}

func Test_NewEventCandidateExpiredTourneyName(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	// An expired row's name belongs to a renamed predecessor and must not
	// resolve.
	expiry := datatypes.Date(time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, db.Create(&Tournament{ID: 3, ParentID: 3, Name: "Vintage Open",
		EffectiveDate: datatypes.Date(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)),
		ExpiryDate:    &expiry}).Error)

	_, err = NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerID:    38008,
		TourneyName: "Vintage Open",
	})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "tourney")
}

func Test_NewEventCandidateGoverningBody(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	_, err = NewEventCandidate(db, EventInput{
		GoverningBody: "UDisc",
		Designation:   "Elite",
		StartDate:     time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		WinnerID:      38008,
		TourneyID:     1,
	})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "governingBody")
	assert.Contains(t, vErr.Reason, "UDisc")
}

func Test_NewEventCandidateEndBeforeStart(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	_, err = NewEventCandidate(db, EventInput{
		Designation: "Elite",
		StartDate:   time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC),
		WinnerID:    38008,
		TourneyID:   1,
	})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Field, "endDate")
}

func Test_governingBodyFor(t *testing.T) {
	assert.Equal(t, governingBodyFor("Major"), "PDGA")
	assert.Equal(t, governingBodyFor("Elite"), "DGPT")
	assert.Equal(t, governingBodyFor("Silver"), "DGPT")
	assert.Equal(t, governingBodyFor(""), "DGPT")
}

func Test_ApplyDivisionResults(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	event := Event{GoverningBody: "DGPT", Designation: "Elite",
		StartDate: datatypes.Date(time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC)),
		EndDate:   datatypes.Date(time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC)),
		WinnerID:  38008, TourneyID: 1, PdgaEventID: 65206}
	assert.NoError(t, db.Create(&event).Error)

	se := &ScrapedEvent{
		PdgaEventID: 65206,
		Status:      "Event complete; official ratings processed.",
		DivisionResults: map[string][]map[string]string{
			"MPO": {
				{"Place": "1", "Name": "Ricky Wysocki", "PDGA#": "38008", "Prize": "$5,500"},
				{"Place": "2", "Name": "Paul McBeth", "PDGA#": "27523", "Prize": "$3,250"},
			},
		},
	}

	err = ApplyDivisionResults(db, se, "MPO")
	assert.NoError(t, err)

	var updated Event
	assert.NoError(t, db.First(&updated, event.ID).Error)
	assert.Contains(t, string(updated.Results), "Ricky Wysocki")
	assert.Contains(t, string(updated.Results), "5500")

	// A page that isn't finalized is refused.
	se.Status = "Round 2 of 3 in progress."
	err = ApplyDivisionResults(db, se, "MPO")
	var notComplete *NotCompleteError
	assert.True(t, errors.As(err, &notComplete))
	assert.Equal(t, notComplete.PdgaEventID, uint(65206))
}

func Test_CompletedUnloadedEvents(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	seasons := []Season{
		// Concluded and unloaded, both divisions.
		{TourneyID: 1, PdgaEventID: 65206, EventDesignation: "Elite", DivisionStr: "MF",
			EndDate: datatypes.Date(time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC))},
		// Concluded but already loaded (a prior event carries its id).
		{TourneyID: 2, PdgaEventID: 55001, EventDesignation: "Major", DivisionStr: "F",
			EndDate: datatypes.Date(time.Date(2022, 4, 24, 0, 0, 0, 0, time.UTC))},
		// Not concluded yet.
		{TourneyID: 2, PdgaEventID: 70000, EventDesignation: "Elite", DivisionStr: "M",
			EndDate: datatypes.Date(time.Date(2023, 6, 11, 0, 0, 0, 0, time.UTC))},
	}
	for i := range seasons {
		assert.NoError(t, db.Create(&seasons[i]).Error)
	}

	pending, err := CompletedUnloadedEvents(db, time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	assert.Len(t, pending, 2)
	assert.Equal(t, pending[0].PdgaEventID, uint(65206))
	assert.Equal(t, pending[0].Division, "MPO")
	assert.Equal(t, pending[1].PdgaEventID, uint(65206))
	assert.Equal(t, pending[1].Division, "FPO")
	assert.Equal(t, pending[0].TourneyID, uint(1))
	assert.Equal(t, pending[0].Designation, "Elite")
}

func Test_LoadCompletedEvents(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	assert.NoError(t, db.Create(&Season{TourneyID: 1, PdgaEventID: 65206,
		EventDesignation: "Elite", DivisionStr: "MF",
		EndDate: datatypes.Date(time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC))}).Error)

	path := filepath.Join("testdata", "event.html")
	htmlContent, err := os.ReadFile(path)
	assert.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(htmlContent)
	}))
	defer server.Close()

	scraper := NewScraper(db)
	scraper.baseURL = server.URL + "/"

	loaded, errs := LoadCompletedEvents(db, scraper, time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Empty(t, errs)
	assert.Equal(t, loaded, 2)

	var events []Event
	assert.NoError(t, db.Preload("Winner").Where("pdga_event_id = ?", 65206).Find(&events).Error)
	assert.Len(t, events, 2)

	byDivision := make(map[string]Event, len(events))
	for _, e := range events {
		byDivision[e.Winner.Division] = e
	}
	assert.Equal(t, byDivision["MPO"].WinnerID, uint(38008))
	assert.Equal(t, byDivision["FPO"].WinnerID, uint(73986))
	assert.Equal(t, byDivision["MPO"].City, "Austin")
	assert.Equal(t, byDivision["MPO"].State, "TX")
	assert.Equal(t, byDivision["MPO"].CountryCode, "US")
	assert.Equal(t, byDivision["MPO"].GoverningBody, "DGPT")
	assert.Contains(t, string(byDivision["MPO"].Results), "Ricky Wysocki")
	assert.Contains(t, string(byDivision["FPO"].Results), "Kristin Tattar")

	// A second sweep finds nothing left to do.
	loaded, errs = LoadCompletedEvents(db, scraper, time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Empty(t, errs)
	assert.Equal(t, loaded, 0)
}

func Test_LoadCompletedEventsPartialFailure(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	seasons := []Season{
		{TourneyID: 1, PdgaEventID: 65206, EventDesignation: "Elite", DivisionStr: "MF",
			EndDate: datatypes.Date(time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC))},
		{TourneyID: 2, PdgaEventID: 66001, EventDesignation: "Elite", DivisionStr: "M",
			EndDate: datatypes.Date(time.Date(2023, 4, 23, 0, 0, 0, 0, time.UTC))},
	}
	for i := range seasons {
		assert.NoError(t, db.Create(&seasons[i]).Error)
	}

	path := filepath.Join("testdata", "event.html")
	htmlContent, err := os.ReadFile(path)
	assert.NoError(t, err)

	// One of the two stops has no page behind it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "66001") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Write(htmlContent)
	}))
	defer server.Close()

	scraper := NewScraper(db)
	scraper.baseURL = server.URL + "/"

	// The dead stop is reported but doesn't stop the sweep: the good stop's
	// two divisions still load.
	loaded, errs := LoadCompletedEvents(db, scraper, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, loaded, 2)
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "66001")

	var fetchErr *FetchError
	assert.True(t, errors.As(errs[0], &fetchErr))
	assert.Equal(t, fetchErr.StatusCode, http.StatusNotFound)

	var count int64
	assert.NoError(t, db.Model(&Event{}).Where("pdga_event_id = ?", 65206).Count(&count).Error)
	assert.Equal(t, count, int64(2))
	assert.NoError(t, db.Model(&Event{}).Where("pdga_event_id = ?", 66001).Count(&count).Error)
	assert.Equal(t, count, int64(0))
}

func Test_LoadCompletedEventsSkipsManualEvents(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, applyMigrations(db))
	seedReferenceData(t, db)

	assert.NoError(t, db.Create(&Season{TourneyID: 1, PdgaEventID: 80,
		EventDesignation: "Elite", DivisionStr: "M",
		EndDate: datatypes.Date(time.Date(2019, 3, 10, 0, 0, 0, 0, time.UTC))}).Error)

	loaded, errs := LoadCompletedEvents(db, nil, time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Empty(t, errs)
	assert.Equal(t, loaded, 0)
}
