// Package voterdb owns the SQLite database holding the voter reference
// table, the import job ledger, and per-import snapshot tables. All SQL
// against the voters table lives here; higher layers work with models.
package voterdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/petitionqc/voterd/internal/county"
	"github.com/petitionqc/voterd/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// voterColumns is the full, fixed column set of the voters table minus
// the autoincrement id. The accepted source field set is allow-listed,
// so the insert column list is static rather than derived per batch.
var voterColumns = []string{
	"sos_voterid",
	"county_number",
	"first_name",
	"middle_name",
	"last_name",
	"residential_address1",
	"residential_address2",
	"residential_city",
	"residential_state",
	"residential_zip",
	"city",
	"date_of_birth",
	"registration_date",
	"precinct_code",
	"precinct_name",
	"ward",
}

// dateLayout is the storage format for date-valued voter fields.
const dateLayout = "2006-01-02"

// insertChunkRows bounds the number of rows per multi-row INSERT so the
// bound-parameter count stays well under SQLite's variable limit.
const insertChunkRows = 500

// Store wraps the shared SQLite database.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// CountyCount is one row of the loaded-counties listing.
type CountyCount struct {
	Name   string `json:"name"`
	Number string `json:"number"`
	Count  int64  `json:"count"`
}

// Open opens (creating if needed) the voterd database and ensures the
// schema exists.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "voterdb").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("db_path", path).Msg("Voter database opened")
	return s, nil
}

// DB exposes the underlying handle for the job ledger, which lives in
// the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS voters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sos_voterid TEXT,
			county_number TEXT,
			first_name TEXT,
			middle_name TEXT,
			last_name TEXT,
			residential_address1 TEXT,
			residential_address2 TEXT,
			residential_city TEXT,
			residential_state TEXT,
			residential_zip TEXT,
			city TEXT,
			date_of_birth TEXT,
			registration_date TEXT,
			precinct_code TEXT,
			precinct_name TEXT,
			ward TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create voters table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_voters_sos_voterid ON voters(sos_voterid)`,
		`CREATE INDEX IF NOT EXISTS idx_voters_county_number ON voters(county_number)`,
		`CREATE INDEX IF NOT EXISTS idx_voters_address ON voters(residential_address1)`,
		`CREATE INDEX IF NOT EXISTS idx_voters_last_name ON voters(last_name)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS voter_imports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			county_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			total_rows INTEGER NOT NULL DEFAULT 0,
			processed_rows INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			backup_table TEXT NOT NULL DEFAULT '',
			detected_county_number TEXT NOT NULL DEFAULT '',
			cancel_requested INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create voter_imports table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_voter_imports_status ON voter_imports(status)`)
	if err != nil {
		return fmt.Errorf("failed to create voter_imports index: %w", err)
	}

	return nil
}

// CommitBatch inserts a batch of voters and advances the owning job's
// processed-row counter in a single transaction. The counter and the
// rows become visible together, so a crash between batches loses at
// most one batch of progress.
func (s *Store) CommitBatch(ctx context.Context, jobID int64, voters []*models.Voter, processed int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(voters); start += insertChunkRows {
		end := start + insertChunkRows
		if end > len(voters) {
			end = len(voters)
		}
		if err := insertChunk(ctx, tx, voters[start:end]); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE voter_imports SET processed_rows = ? WHERE id = ?`,
		processed, jobID,
	); err != nil {
		return fmt.Errorf("failed to update processed rows: %w", err)
	}

	return tx.Commit()
}

func insertChunk(ctx context.Context, tx *sql.Tx, voters []*models.Voter) error {
	if len(voters) == 0 {
		return nil
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?,", len(voterColumns)), ",") + ")"
	placeholders := make([]string, len(voters))
	args := make([]interface{}, 0, len(voters)*len(voterColumns))
	for i, v := range voters {
		placeholders[i] = row
		args = append(args,
			nullable(v.SOSVoterID),
			nullable(v.CountyNumber),
			nullable(v.FirstName),
			nullable(v.MiddleName),
			nullable(v.LastName),
			nullable(v.ResidentialAddress1),
			nullable(v.ResidentialAddress2),
			nullable(v.ResidentialCity),
			nullable(v.ResidentialState),
			nullable(v.ResidentialZip),
			nullable(v.City),
			nullableDate(v.DateOfBirth),
			nullableDate(v.RegistrationDate),
			nullable(v.PrecinctCode),
			nullable(v.PrecinctName),
			nullable(v.Ward),
		)
	}

	query := fmt.Sprintf("INSERT INTO voters (%s) VALUES %s",
		strings.Join(voterColumns, ", "), strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert voter batch: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

// CountByCounty returns the number of voters loaded for a county.
func (s *Store) CountByCounty(ctx context.Context, countyNumber string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM voters WHERE county_number = ?`, countyNumber,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count voters: %w", err)
	}
	return count, nil
}

// DeleteCounty removes all voters for a county and returns the count
// removed. Irreversible outside the snapshot machinery.
func (s *Store) DeleteCounty(ctx context.Context, countyNumber string) (int64, error) {
	if countyNumber == "" {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM voters WHERE county_number = ?`, countyNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to delete county voters: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteAll removes every voter record and returns the count removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voters`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete voters: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LoadedCounties returns the counties that currently have voters loaded,
// with row counts, ordered by county number.
func (s *Store) LoadedCounties(ctx context.Context) ([]CountyCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT county_number, COUNT(*)
		FROM voters
		WHERE county_number IS NOT NULL
		GROUP BY county_number
		ORDER BY county_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loaded counties: %w", err)
	}
	defer rows.Close()

	var out []CountyCount
	for rows.Next() {
		var cc CountyCount
		if err := rows.Scan(&cc.Number, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan county row: %w", err)
		}
		cc.Name = county.Name(cc.Number)
		if cc.Name == "" {
			cc.Name = fmt.Sprintf("Unknown (%s)", cc.Number)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// VotersByCounty returns all voters for a county ordered by id.
func (s *Store) VotersByCounty(ctx context.Context, countyNumber string) ([]*models.Voter, error) {
	query := fmt.Sprintf(
		`SELECT id, %s FROM voters WHERE county_number = ? ORDER BY id`,
		strings.Join(voterColumns, ", "))
	rows, err := s.db.QueryContext(ctx, query, countyNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query voters: %w", err)
	}
	defer rows.Close()

	var out []*models.Voter
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVoter(rows *sql.Rows) (*models.Voter, error) {
	var v models.Voter
	var sosID, countyNum, first, middle, last sql.NullString
	var addr1, addr2, rcity, rstate, rzip, city sql.NullString
	var dob, regDate sql.NullString
	var pcode, pname, ward sql.NullString

	err := rows.Scan(&v.ID, &sosID, &countyNum, &first, &middle, &last,
		&addr1, &addr2, &rcity, &rstate, &rzip, &city,
		&dob, &regDate, &pcode, &pname, &ward)
	if err != nil {
		return nil, fmt.Errorf("failed to scan voter: %w", err)
	}

	v.SOSVoterID = sosID.String
	v.CountyNumber = countyNum.String
	v.FirstName = first.String
	v.MiddleName = middle.String
	v.LastName = last.String
	v.ResidentialAddress1 = addr1.String
	v.ResidentialAddress2 = addr2.String
	v.ResidentialCity = rcity.String
	v.ResidentialState = rstate.String
	v.ResidentialZip = rzip.String
	v.City = city.String
	v.DateOfBirth = parseStoredDate(dob)
	v.RegistrationDate = parseStoredDate(regDate)
	v.PrecinctCode = pcode.String
	v.PrecinctName = pname.String
	v.Ward = ward.String
	return &v, nil
}

func parseStoredDate(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
