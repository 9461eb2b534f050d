// Package results persists completed runs into a sqlite database so that
// past estimates can be listed and re-rendered without re-reading the raw
// data. The schema is managed with embedded migrations applied on open.
package results

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/upper/db/v4"
	"github.com/upper/db/v4/adapter/sqlite"
	"github.com/washb/sanlaz/internal/model"
)

// migrations is the embedded schema history. Append-only: never edit an
// entry that has shipped.
var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_create_runs_and_estimates",
			Up: []string{
				`CREATE TABLE runs (
					id TEXT NOT NULL PRIMARY KEY,
					start_time DATETIME NOT NULL,
					country TEXT NOT NULL,
					cohort_size INTEGER NOT NULL
				);`,
				`CREATE TABLE estimates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					estimator TEXT NOT NULL,
					estimate REAL NOT NULL,
					lower REAL NOT NULL,
					upper REAL NOT NULL,
					p_value REAL NOT NULL,
					FOREIGN KEY(run_id) REFERENCES runs(id)
				);`,
			},
			Down: []string{
				`DROP TABLE estimates;`,
				`DROP TABLE runs;`,
			},
		},
	},
}

// Run is one persisted country run.
type Run struct {
	ID         string    `db:"id"`
	StartTime  time.Time `db:"start_time"`
	Country    string    `db:"country"`
	CohortSize int       `db:"cohort_size"`
}

// Estimate is one persisted effect estimate. Position preserves the
// estimator presentation order within a run.
type Estimate struct {
	ID        int64   `db:"id,omitempty"`
	RunID     string  `db:"run_id"`
	Position  int     `db:"position"`
	Estimator string  `db:"estimator"`
	Estimate  float64 `db:"estimate"`
	Lower     float64 `db:"lower"`
	Upper     float64 `db:"upper"`
	PValue    float64 `db:"p_value"`
}

// Store wraps the database session.
type Store struct {
	sess db.Session
}

// Open connects to (creating if needed) the sqlite database at path and
// applies any pending migrations.
func Open(path string) (*Store, error) {
	sess, err := sqlite.Open(sqlite.ConnectionURL{Database: path})
	if err != nil {
		return nil, errors.Wrap(err, "results: opening database")
	}
	driver, ok := sess.Driver().(*sql.DB)
	if !ok {
		sess.Close()
		return nil, errors.New("results: unexpected database driver")
	}
	if _, err := migrate.Exec(driver, "sqlite3", migrations, migrate.Up); err != nil {
		sess.Close()
		return nil, errors.Wrap(err, "results: running migrations")
	}
	return &Store{sess: sess}, nil
}

// Close closes the database session.
func (s *Store) Close() error {
	return s.sess.Close()
}

// SaveRun persists a run and its ordered estimates in one transaction and
// returns the run's generated identifier.
func (s *Store) SaveRun(country string, cohortSize int,
	estimates []model.EstimateResult) (string, error) {
	run := &Run{
		ID:         uuid.NewString(),
		StartTime:  time.Now().UTC(),
		Country:    country,
		CohortSize: cohortSize,
	}
	err := s.sess.Tx(func(tx db.Session) error {
		if _, err := tx.Collection("runs").Insert(run); err != nil {
			return errors.Wrap(err, "results: inserting run")
		}
		for idx := range estimates {
			record := &Estimate{
				RunID:     run.ID,
				Position:  idx,
				Estimator: estimates[idx].Estimator,
				Estimate:  estimates[idx].Estimate,
				Lower:     estimates[idx].Lower,
				Upper:     estimates[idx].Upper,
				PValue:    estimates[idx].PValue,
			}
			if _, err := tx.Collection("estimates").Insert(record); err != nil {
				return errors.Wrap(err, "results: inserting estimate")
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// ListRuns returns all persisted runs, most recent first.
func (s *Store) ListRuns() ([]Run, error) {
	var runs []Run
	err := s.sess.Collection("runs").Find().OrderBy("-start_time").All(&runs)
	if err != nil {
		return nil, errors.Wrap(err, "results: listing runs")
	}
	return runs, nil
}

// EstimatesFor returns a run's estimates in their original order.
func (s *Store) EstimatesFor(runID string) ([]Estimate, error) {
	var estimates []Estimate
	err := s.sess.Collection("estimates").Find(db.Cond{"run_id": runID}).
		OrderBy("position").All(&estimates)
	if err != nil {
		return nil, errors.Wrap(err, "results: listing estimates")
	}
	return estimates, nil
}
