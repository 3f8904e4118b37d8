package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/user"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jessevdk/go-flags"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dataDir        = ".discgolfserver"
	dbName         = "discgolf.db"
	jwtKeyHex      = "9f41c7d2a06b58e3f1249c8e7d305aa1bd6e49227c8f0db3efa25c118b4d77fe"
	userContextKey = contextKey("user")
)

type contextKey string

type Options struct {
	DataDir string `short:"d" long:"datadir" description:"Directory to store the database in"`
	Listen  string `short:"l" long:"listen" description:"Interface and port to listen on" default:":8080"`
	DevMode bool   `long:"dev" description:"Run in dev mode (insecure cookies)"`
}

type Server struct {
	db               *gorm.DB
	r                chi.Router
	devMode          bool
	loginRateLimiter *limiter.Limiter
	scraper          *Scraper
	photos           *PhotoUpdater
}

var jwtKey []byte

func init() {
	var err error
	jwtKey, err = hex.DecodeString(jwtKeyHex)
	if err != nil {
		log.Fatal("error parsing jwt key")
	}
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	db, err := initDatabase(opts.DataDir)
	if err != nil {
		log.Fatalf("Database initialization errored: %s", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	rate := limiter.Rate{Period: time.Minute, Limit: 10}
	s := &Server{
		db:               db,
		r:                r,
		devMode:          opts.DevMode,
		loginRateLimiter: limiter.New(memory.NewStore(), rate),
		scraper:          NewScraper(db),
		photos:           NewPhotoUpdater(),
	}

	r.Post("/login", s.POSTLoginHandler)
	r.Post("/logout", s.POSTLogoutHandler)
	r.Post("/changepw", authMiddleware(s.POSTChangePasswordHandler))

	r.Get("/api/players", s.GETPlayers)
	r.Get("/api/countries", s.GETCountries)
	r.Get("/api/event_results", s.GETEventResults)
	r.Get("/api/results_flat", s.GETResultsFlat)
	r.Get("/api/leaderboard", s.GETLeaderboard)
	r.Get("/api/wins", s.GETPlayerWins)
	r.Get("/api/events/last", s.GETLastEvent)
	r.Get("/api/events/unloaded", s.GETUnloadedEvents)

	r.Post("/api/events", authMiddleware(s.POSTEvent))
	r.Post("/api/events/load", authMiddleware(s.POSTLoadEvents))
	r.Post("/api/events/{pdgaEventID}/results", authMiddleware(s.POSTEventResults))
	r.Post("/api/players", authMiddleware(s.POSTPlayer))
	r.Post("/api/players/photos", authMiddleware(s.POSTRefreshPhotos))
	r.Post("/api/tournaments", authMiddleware(s.POSTTournament))
	r.Put("/api/tournaments/{tourneyID}/name", authMiddleware(s.PUTTournamentName))
	r.Post("/api/countries", authMiddleware(s.POSTCountries))

	log.Printf("Listening on %s", opts.Listen)
	if err := http.ListenAndServe(opts.Listen, r); err != nil {
		log.Fatal(err)
	}
}

// Check to see if the database exists. If not create it and initialize
// it with a default admin password to be changed later.
func initDatabase(dataDirPath string) (*gorm.DB, error) {
	if dataDirPath == "" {
		// Get the OS specific home directory via the Go standard lib.
		var homeDir string
		usr, err := user.Current()
		if err == nil {
			homeDir = usr.HomeDir
		}

		// Fall back to standard HOME environment variable that works
		// for most POSIX OSes if the directory from the Go standard
		// lib failed.
		if err != nil || homeDir == "" {
			homeDir = os.Getenv("HOME")
		}
		dataDirPath = path.Join(homeDir, dataDir)
	}

	if err := os.MkdirAll(dataDirPath, os.ModePerm); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path.Join(dataDirPath, dbName)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db); err != nil {
		return nil, err
	}

	var creds DBCredentials
	result := db.First(&creds)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			result := db.Create(&DBCredentials{Username: "admin", PasswordHash: string(hash)})
			if result.Error != nil {
				return nil, result.Error
			}
		} else {
			return nil, result.Error
		}
	}

	return db, nil
}

// Validate the JWT token. It can either been in a cookie or a header.
func authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tokenStr string

		// First try Authorization header
		authHeader := r.Header.Get("Authorization")
		if len(authHeader) >= 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		} else {
			// Fallback to auth_token cookie
			cookie, err := r.Cookie("auth_token")
			if err != nil {
				http.Error(w, "Missing auth token", http.StatusUnauthorized)
				return
			}
			tokenStr = cookie.Value
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return jwtKey, nil
		})

		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Token is valid, proceed
		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
