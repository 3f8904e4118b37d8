package main

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreatePlayer admits a new player after checking the identifier is unused
// and the country code exists.
func CreatePlayer(db *gorm.DB, p *Player) error {
	var existing Player
	err := db.First(&existing, "pdga_id = ?", p.PdgaID).Error
	if err == nil {
		return &ValidationError{
			Field:  "pdgaId",
			Reason: fmt.Sprintf("a player with PDGA #%d already exists", p.PdgaID),
		}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var country Country
	if err := db.First(&country, "code = ?", p.CountryCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ValidationError{
				Field:  "countryCode",
				Reason: fmt.Sprintf("no such country code of %s found", p.CountryCode),
			}
		}
		return err
	}

	return db.Create(p).Error
}

// CreateTournament admits a new tournament. The name must be unique among
// currently-effective tournaments; expired rows belong to renamed
// predecessors and don't block reuse.
func CreateTournament(db *gorm.DB, t *Tournament) error {
	var existing Tournament
	err := db.First(&existing, "name = ? AND expiry_date IS NULL", t.Name).Error
	if err == nil {
		return &ValidationError{
			Field:  "name",
			Reason: fmt.Sprintf("%s already exists", t.Name),
		}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if t.ParentID == 0 {
		var maxParent uint
		row := db.Model(&Tournament{}).Select("COALESCE(MAX(parent_id), 0)").Row()
		if err := row.Scan(&maxParent); err != nil {
			return err
		}
		t.ParentID = maxParent + 1
	}
	if time.Time(t.EffectiveDate).IsZero() {
		now := time.Now()
		t.EffectiveDate = datatypes.Date(time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC))
	}

	return db.Create(t).Error
}

// RenameTournament supersedes a tournament with a renamed successor: the old
// row expires the day before the effective date and the new row keeps the
// same parent id.
func RenameTournament(db *gorm.DB, tourneyID uint, newName string, effective time.Time) (*Tournament, error) {
	var old Tournament
	if err := db.First(&old, tourneyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{
				Field:  "tourneyId",
				Reason: fmt.Sprintf("can't find tourney ID %d", tourneyID),
			}
		}
		return nil, err
	}
	if old.ExpiryDate != nil {
		return nil, &ValidationError{
			Field:  "tourneyId",
			Reason: fmt.Sprintf("tournament %d has already been superseded", tourneyID),
		}
	}

	successor := &Tournament{
		ParentID:      old.ParentID,
		Name:          newName,
		EffectiveDate: datatypes.Date(effective),
		City:          old.City,
		State:         old.State,
		CountryCode:   old.CountryCode,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		expiry := datatypes.Date(effective.AddDate(0, 0, -1))
		if err := tx.Model(&old).Update("expiry_date", expiry).Error; err != nil {
			return err
		}
		return tx.Create(successor).Error
	})
	if err != nil {
		return nil, err
	}
	return successor, nil
}
