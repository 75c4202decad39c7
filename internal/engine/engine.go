package engine

import (
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"

	"voluna/internal/config"
	"voluna/internal/events"
	"voluna/internal/repo"
)

// Engine owns the activity application and validation lifecycle: the
// application registry, the validation protocol, reward payouts and the
// activity status orchestration. Every multi-row mutation it performs is one
// SQL transaction; read-then-decide sequences across two transactions are
// not atomic (see CreateApplication).
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	// Location sets the calendar context for the token validation date
	// window. Defaults to UTC.
	Location *time.Location
	Logger   *log.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) location() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.UTC
}

// today returns the current calendar day in the engine's location,
// formatted like activity start dates.
func (e Engine) today() string {
	return e.now().In(e.location()).Format("2006-01-02")
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func newID() string {
	return uuid.New().String()
}

// newCompletionToken mints the single-use secret for local/event activities.
func newCompletionToken() string {
	return uuid.New().String()
}
