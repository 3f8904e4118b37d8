package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"gorm.io/gorm"
)

const (
	pdgaPlayerBaseURL = "https://www.pdga.com/player/"

	// Stock image for players who have never had a photo scraped.
	defaultPlayerPhotoURL = "https://cdn.pixabay.com/photo/2015/10/05/22/37/blank-profile-picture-973460_1280.png"
)

// PhotoUpdate pairs a player with a newly discovered photo url.
type PhotoUpdate struct {
	PdgaID   uint   `json:"pdgaId"`
	PhotoUrl string `json:"photoUrl"`
}

type PhotoUpdater struct {
	client  *http.Client
	baseURL string
}

func NewPhotoUpdater() *PhotoUpdater {
	return &PhotoUpdater{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: pdgaPlayerBaseURL,
	}
}

// UpdatedPhotos checks every (player, photo url) pair against the player's
// PDGA profile page. A changed photo yields the new url; a player with no
// stored photo at all falls back to the stock default.
func (u *PhotoUpdater) UpdatedPhotos(players []Player) []PhotoUpdate {
	var updates []PhotoUpdate
	for _, p := range players {
		onlineURL, err := u.scrapePhotoURL(p.PdgaID)
		if err != nil {
			// One unreachable profile shouldn't stall the rest.
			continue
		}
		if onlineURL != "" && onlineURL != p.PhotoUrl {
			updates = append(updates, PhotoUpdate{PdgaID: p.PdgaID, PhotoUrl: onlineURL})
		} else if p.PhotoUrl == "" {
			updates = append(updates, PhotoUpdate{PdgaID: p.PdgaID, PhotoUrl: defaultPlayerPhotoURL})
		}
	}
	return updates
}

// scrapePhotoURL returns the profile photo url, or "" when the page has no
// photo gallery element.
func (u *PhotoUpdater) scrapePhotoURL(pdgaID uint) (string, error) {
	url := fmt.Sprintf("%s%d", u.baseURL, pdgaID)
	resp, err := u.client.Get(url)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing player page: %w", err)
	}
	src, _ := doc.Find(`[rel="gallery-player_photo"] img`).First().Attr("src")
	return src, nil
}

// RefreshPlayerPhotos scrapes fresh photo urls for every player and writes
// back the ones that changed. Returns the applied updates.
func RefreshPlayerPhotos(db *gorm.DB, updater *PhotoUpdater) ([]PhotoUpdate, error) {
	var players []Player
	if err := db.Find(&players).Error; err != nil {
		return nil, err
	}

	updates := updater.UpdatedPhotos(players)
	for _, up := range updates {
		err := db.Model(&Player{}).Where("pdga_id = ?", up.PdgaID).
			Update("photo_url", up.PhotoUrl).Error
		if err != nil {
			return nil, fmt.Errorf("updating photo for player %d: %w", up.PdgaID, err)
		}
	}
	return updates, nil
}
