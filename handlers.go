package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func (s *Server) POSTLoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	// Check if rate limit has been exceeded
	key := loginRateLimitKey(r, creds.Username)
	ctx, err := s.loginRateLimiter.Peek(r.Context(), key)
	if err != nil {
		http.Error(w, "Rate limiter error", http.StatusInternalServerError)
		return
	}
	if ctx.Reached {
		http.Error(w, "Too many failed login attempts", http.StatusTooManyRequests)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", creds.Username)
	if result.Error != nil {
		s.loginRateLimiter.Increment(r.Context(), key, 2)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	err = bcrypt.CompareHashAndPassword([]byte(dbCreds.PasswordHash), []byte(creds.Password))
	if err != nil {
		s.loginRateLimiter.Increment(r.Context(), key, 2)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	expiration := time.Now().Add(60 * time.Minute)
	claims := &Claims{
		Username: creds.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(jwtKey)
	if err != nil {
		http.Error(w, "Could not generate token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    tokenStr,
		HttpOnly: true,
		Secure:   !s.devMode,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	})
	w.WriteHeader(http.StatusOK)
}

func loginRateLimitKey(r *http.Request, username string) string {
	return fmt.Sprintf("%s:%s", r.RemoteAddr, username)
}

func (s *Server) POSTLogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.devMode,
		SameSite: http.SameSiteNoneMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) POSTChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(userContextKey).(*Claims)
	if !ok || claims == nil {
		http.Error(w, "User info not found in context", http.StatusInternalServerError)
		return
	}

	var pwChangeReq PWChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&pwChangeReq); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", claims.Username)
	if result.Error != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	err := bcrypt.CompareHashAndPassword([]byte(dbCreds.PasswordHash), []byte(pwChangeReq.CurrentPassword))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pwChangeReq.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Could not hash password", http.StatusInternalServerError)
		return
	}
	dbCreds.PasswordHash = string(hash)
	if err := s.db.Save(&dbCreds).Error; err != nil {
		http.Error(w, "Could not save password", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) GETPlayers(w http.ResponseWriter, r *http.Request) {
	var players []Player
	if err := s.db.Order("last_name, first_name").Find(&players).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(players)
}

func (s *Server) GETEventResults(w http.ResponseWriter, r *http.Request) {
	results, err := LoadEventResults(s.db)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results.Results)
}

func (s *Server) GETResultsFlat(w http.ResponseWriter, r *http.Request) {
	results, err := LoadEventResults(s.db)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DecorateRows(results.Flat()))
}

// GETLeaderboard runs the filter/group/rank pipeline. Filters arrive as
// repeatable query params keyed by flat column name; "grouper" picks the
// dimension and "top" the tie-aware cutoff.
func (s *Server) GETLeaderboard(w http.ResponseWriter, r *http.Request) {
	results, err := LoadEventResults(s.db)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	rows := DecorateRows(results.Flat())

	query := r.URL.Query()
	grouper := query.Get("grouper")
	if grouper == "" {
		grouper = "player_w_flag"
	}

	filters := FilterSet{Fields: make(map[string][]string)}
	for _, field := range []string{
		"player_w_flag", "country_w_flag", "player_division",
		"event_designation_map", "tourney_name", "event_state", "event_country_name",
	} {
		if values, ok := query[field]; ok {
			filters.Fields[field] = values
		}
	}
	if from, to := query.Get("from"), query.Get("to"); from != "" && to != "" {
		start, err1 := time.Parse("2006-01-02", from)
		end, err2 := time.Parse("2006-01-02", to)
		if err1 != nil || err2 != nil {
			http.Error(w, "Malformed from/to date", http.StatusBadRequest)
			return
		}
		filters.TimePeriod = &DateRange{Start: start, End: end}
	}

	filtered := FilterRows(rows, filters)
	ranked := RankGroups(GroupCounts(filtered, grouper))

	if topStr := query.Get("top"); topStr != "" {
		n, err := strconv.Atoi(topStr)
		if err != nil || n <= 0 {
			http.Error(w, "Malformed top cutoff", http.StatusBadRequest)
			return
		}
		ranked = TopNWithTies(ranked, n)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"grouper":     grouper,
		"leaderboard": ranked,
		"events":      filtered,
	})
}

// GETPlayerWins returns per-season and cumulative win series for the
// requested players (comma-separated full names).
func (s *Server) GETPlayerWins(w http.ResponseWriter, r *http.Request) {
	players := strings.Split(r.URL.Query().Get("players"), ",")
	for i := range players {
		players[i] = strings.TrimSpace(players[i])
	}

	results, err := LoadEventResults(s.db)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	perYear, cumulative := PlayerYearWins(results.Flat(), players)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"perYear":    perYear,
		"cumulative": cumulative,
	})
}

func (s *Server) GETLastEvent(w http.ResponseWriter, r *http.Request) {
	results, err := LoadEventResults(s.db)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	last := results.LastEvent()
	if last == nil {
		http.Error(w, "No events loaded yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(last)
}

func (s *Server) POSTEvent(w http.ResponseWriter, r *http.Request) {
	var in EventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	candidate, err := NewEventCandidate(s.db, in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	event, err := candidate.Admit(s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error saving new event: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(event)
}

// POSTEventResults re-scrapes a loaded event and applies the finalized
// placement rows for one division.
func (s *Server) POSTEventResults(w http.ResponseWriter, r *http.Request) {
	pdgaEventID, err := strconv.ParseUint(chi.URLParam(r, "pdgaEventID"), 10, 32)
	if err != nil {
		http.Error(w, "Malformed event id", http.StatusBadRequest)
		return
	}
	division := strings.ToUpper(r.URL.Query().Get("division"))
	if !trackedDivisions[division] {
		http.Error(w, "Division must be MPO or FPO", http.StatusBadRequest)
		return
	}
	if manualPdgaEventIDs[uint(pdgaEventID)] {
		http.Error(w, "Event has no PDGA page; it was entered manually", http.StatusBadRequest)
		return
	}

	se, err := s.scraper.ScrapeEvent(uint(pdgaEventID))
	if err != nil {
		http.Error(w, fmt.Sprintf("Error scraping event: %s", err.Error()), http.StatusBadGateway)
		return
	}
	if err := ApplyDivisionResults(s.db, se, division); err != nil {
		var nce *NotCompleteError
		if errors.As(err, &nce) {
			http.Error(w, nce.Error(), http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("Error applying results: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) POSTPlayer(w http.ResponseWriter, r *http.Request) {
	var player Player
	if err := json.NewDecoder(r.Body).Decode(&player); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if player.PdgaID <= 1 {
		http.Error(w, "Please enter a valid PDGA #", http.StatusBadRequest)
		return
	}
	if player.Division != "MPO" && player.Division != "FPO" {
		http.Error(w, "Division must be MPO or FPO", http.StatusBadRequest)
		return
	}

	if err := CreatePlayer(s.db, &player); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Could not save player", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(player)
}

func (s *Server) POSTTournament(w http.ResponseWriter, r *http.Request) {
	var tourney Tournament
	if err := json.NewDecoder(r.Body).Decode(&tourney); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if tourney.Name == "" {
		http.Error(w, "Tournament name must be set", http.StatusBadRequest)
		return
	}

	if err := CreateTournament(s.db, &tourney); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Could not save tournament", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tourney)
}

// PUTTournamentName supersedes a tournament with a renamed successor row.
func (s *Server) PUTTournamentName(w http.ResponseWriter, r *http.Request) {
	tourneyID, err := strconv.ParseUint(chi.URLParam(r, "tourneyID"), 10, 32)
	if err != nil {
		http.Error(w, "Malformed tournament id", http.StatusBadRequest)
		return
	}
	var payload struct {
		Name          string    `json:"name"`
		EffectiveDate time.Time `json:"effectiveDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Name == "" {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if payload.EffectiveDate.IsZero() {
		payload.EffectiveDate = time.Now()
	}

	successor, err := RenameTournament(s.db, uint(tourneyID), payload.Name, payload.EffectiveDate)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Could not rename tournament", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(successor)
}

func (s *Server) GETCountries(w http.ResponseWriter, r *http.Request) {
	var countries []Country
	if err := s.db.Order("code").Find(&countries).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(countries)
}

func (s *Server) POSTCountries(w http.ResponseWriter, r *http.Request) {
	var countries []Country
	if err := json.NewDecoder(r.Body).Decode(&countries); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	for _, c := range countries {
		if c.Code == "" || c.Name == "" {
			http.Error(w, "Country code and name must be set", http.StatusBadRequest)
			return
		}
	}
	if err := s.db.Save(&countries).Error; err != nil {
		http.Error(w, "Could not save countries", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) GETUnloadedEvents(w http.ResponseWriter, r *http.Request) {
	pending, err := CompletedUnloadedEvents(s.db, time.Now())
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pending)
}

// POSTLoadEvents runs the bulk ingestion sweep. Per-event failures are
// reported but never abort the batch.
func (s *Server) POSTLoadEvents(w http.ResponseWriter, r *http.Request) {
	loaded, errs := LoadCompletedEvents(s.db, s.scraper, time.Now())

	failures := make([]string, 0, len(errs))
	for _, err := range errs {
		failures = append(failures, err.Error())
	}
	sort.Strings(failures)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"loaded":   loaded,
		"failures": failures,
	})
}

func (s *Server) POSTRefreshPhotos(w http.ResponseWriter, r *http.Request) {
	updates, err := RefreshPlayerPhotos(s.db, s.photos)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error refreshing photos: %s", err.Error()), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updates)
}
