package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Credentials struct {
	Username string `json:"username" gorm:"index"`
	Password string `json:"password"`
}

type PWChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type DBCredentials struct {
	gorm.Model
	Username     string
	PasswordHash string
}

type Country struct {
	Code          string `json:"code" gorm:"primaryKey"`
	Name          string `json:"name" gorm:"index"`
	FlagEmojiCode string `json:"flagEmojiCode"`
	FlagEmoji     string `json:"flagEmoji"`
}

type Player struct {
	PdgaID      uint      `json:"pdgaId" gorm:"primaryKey;column:pdga_id;autoIncrement:false"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Division    string    `json:"division" gorm:"index"`
	PhotoUrl    string    `json:"photoUrl"`
	CountryCode string    `json:"countryCode"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"-"`
	Country     Country   `json:"-" gorm:"foreignKey:CountryCode;references:Code"`
}

func (p *Player) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Tournament is a type 2 slowly-changing dimension: a renamed tournament gets
// a new row with the same ParentID, and the old row's ExpiryDate is set.
type Tournament struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	ParentID      uint            `json:"parentId" gorm:"index"`
	Name          string          `json:"name" gorm:"index"`
	EffectiveDate datatypes.Date  `json:"effectiveDate"`
	ExpiryDate    *datatypes.Date `json:"expiryDate"`
	City          string          `json:"city"`
	State         string          `json:"state"`
	CountryCode   string          `json:"countryCode"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"-"`
}

// Event is one tournament-division-year outcome. The division is not stored
// on the event itself; it follows from the winner's division.
type Event struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	GoverningBody string         `json:"governingBody"`
	Designation   string         `json:"designation"`
	StartDate     datatypes.Date `json:"startDate"`
	EndDate       datatypes.Date `json:"endDate" gorm:"index"`
	WinnerID      uint           `json:"winnerId" gorm:"index"`
	TourneyID     uint           `json:"tourneyId" gorm:"index"`
	City          string         `json:"city"`
	State         string         `json:"state"`
	CountryCode   string         `json:"countryCode"`
	PdgaEventID   uint           `json:"pdgaEventId" gorm:"index"`
	Results       datatypes.JSON `json:"results" gorm:"type:json"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"-"`
	Winner        Player         `json:"-" gorm:"foreignKey:WinnerID;references:PdgaID"`
	Tourney       Tournament     `json:"-" gorm:"foreignKey:TourneyID"`
	Country       Country        `json:"-" gorm:"foreignKey:CountryCode;references:Code"`
}

func (e *Event) Year() int {
	return time.Time(e.EndDate).Year()
}

func (e *Event) String() string {
	return fmt.Sprintf("event %d (tourney %d, ends %s)", e.ID, e.TourneyID,
		time.Time(e.EndDate).Format("2006-01-02"))
}

// Season is the tour schedule: one row per stop, used to find completed
// events that haven't been loaded yet.
type Season struct {
	TourneyID        uint           `json:"tourneyId"`
	PdgaEventID      uint           `json:"pdgaEventId" gorm:"primaryKey;autoIncrement:false"`
	EndDate          datatypes.Date `json:"endDate" gorm:"primaryKey"`
	EventDesignation string         `json:"eventDesignation"`
	DivisionStr      string         `json:"divisionStr"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"-"`
}

// Divisions expands the schedule's shorthand: "MF" means both top-tier
// divisions ran as separate events, "M" or "F" just the one.
func (s *Season) Divisions() []string {
	switch s.DivisionStr {
	case "MF":
		return []string{"MPO", "FPO"}
	case "F":
		return []string{"FPO"}
	default:
		return []string{"MPO"}
	}
}

func applyMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&DBCredentials{},
		&Country{},
		&Player{},
		&Tournament{},
		&Event{},
		&Season{},
	)
}

// kv renderings back the nested/flat result views. Each lists its fields
// explicitly so a new column has to be added here on purpose, not by
// reflection accident.

func (c *Country) kv() map[string]any {
	return map[string]any{
		"code":            c.Code,
		"name":            c.Name,
		"flag_emoji_code": c.FlagEmojiCode,
		"flag_emoji":      c.FlagEmoji,
	}
}

func (p *Player) kv() map[string]any {
	return map[string]any{
		"pdga_id":      p.PdgaID,
		"first_name":   p.FirstName,
		"last_name":    p.LastName,
		"full_name":    p.FullName(),
		"division":     p.Division,
		"photo_url":    p.PhotoUrl,
		"country_code": p.CountryCode,
		"created_ts":   p.CreatedAt,
	}
}

func (t *Tournament) kv() map[string]any {
	var expiry any
	if t.ExpiryDate != nil {
		expiry = time.Time(*t.ExpiryDate)
	}
	return map[string]any{
		"id":             t.ID,
		"parent_id":      t.ParentID,
		"name":           t.Name,
		"effective_date": time.Time(t.EffectiveDate),
		"expiry_date":    expiry,
		"city":           t.City,
		"state":          t.State,
		"country_code":   t.CountryCode,
	}
}

// kv requires Tourney and Country to be preloaded; the derived tourney_name
// and country_name columns come from them.
func (e *Event) kv() map[string]any {
	return map[string]any{
		"id":             e.ID,
		"governing_body": e.GoverningBody,
		"designation":    e.Designation,
		"start_date":     time.Time(e.StartDate),
		"end_date":       time.Time(e.EndDate),
		"year":           e.Year(),
		"winner_id":      e.WinnerID,
		"tourney_id":     e.TourneyID,
		"tourney_name":   e.Tourney.Name,
		"city":           e.City,
		"state":          e.State,
		"country_code":   e.CountryCode,
		"country_name":   e.Country.Name,
		"pdga_event_id":  e.PdgaEventID,
	}
}

func (s *Season) kv() map[string]any {
	return map[string]any{
		"tourney_id":        s.TourneyID,
		"pdga_event_id":     s.PdgaEventID,
		"end_date":          time.Time(s.EndDate),
		"event_designation": s.EventDesignation,
		"divisions":         s.Divisions(),
	}
}
