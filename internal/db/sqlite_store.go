package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/npnl/enigma-request/internal/api"
)

const timeLayout = time.RFC3339Nano

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file if needed and applies migrations.
func Open(sqlitePath, migrationsDir string) (*sql.DB, error) {
	if strings.TrimSpace(sqlitePath) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(sqlitePath))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := RunMigrations(sqliteDB, migrationsDir); err != nil {
		_ = sqliteDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqliteDB, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func NewStore(db *sql.DB) (api.Store, error) {
	return NewSQLiteStore(db)
}

var _ api.Store = (*SQLiteStore)(nil)

func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *SQLiteStore) AddRequest(r *api.RequestRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO requests (file_name, created_at, name, email, status, proposal_status, body) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.FileName, r.CreatedAt.UTC().Format(timeLayout), r.Name, r.Email, r.Status, toNullString(r.ProposalStatus), string(r.Body),
	)
	if isConstraint(err) {
		return api.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert request %s: %w", r.FileName, err)
	}
	return nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*api.RequestRecord, error) {
	var (
		rec       api.RequestRecord
		createdAt string
		proposal  sql.NullString
		body      string
	)
	if err := row.Scan(&rec.FileName, &createdAt, &rec.Name, &rec.Email, &rec.Status, &proposal, &body); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.ProposalStatus = proposal.String
	rec.Body = []byte(body)
	return &rec, nil
}

const requestColumns = `file_name, created_at, name, email, status, proposal_status, body`

func (s *SQLiteStore) ListRequests() ([]*api.RequestRecord, error) {
	rows, err := s.db.Query(`SELECT ` + requestColumns + ` FROM requests ORDER BY created_at DESC, file_name DESC`)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	var out []*api.RequestRecord
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRequest(fileName string) (*api.RequestRecord, error) {
	rec, err := scanRequest(s.db.QueryRow(`SELECT `+requestColumns+` FROM requests WHERE file_name = ?`, fileName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", fileName, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListCollaborators() ([]*api.CollaboratorRecord, error) {
	rows, err := s.db.Query(`SELECT idx, primary_email, doc FROM collaborators ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()
	var out []*api.CollaboratorRecord
	for rows.Next() {
		var (
			rec api.CollaboratorRecord
			doc string
		)
		if err := rows.Scan(&rec.Index, &rec.PrimaryEmail, &doc); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		rec.Doc = []byte(doc)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertCollaborator(c *api.CollaboratorRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO collaborators (idx, primary_email, doc, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(idx) DO UPDATE SET primary_email = excluded.primary_email, doc = excluded.doc, updated_at = excluded.updated_at`,
		c.Index, c.PrimaryEmail, string(c.Doc), s.now().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert collaborator %d: %w", c.Index, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCollaborator(index int) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM collaborators WHERE idx = ?`, index)
	if err != nil {
		return false, fmt.Errorf("delete collaborator %d: %w", index, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListAdmins(scope string) ([]string, error) {
	rows, err := s.db.Query(`SELECT email FROM admins WHERE scope = ? ORDER BY created_at, email`, scope)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddAdmin(scope, email string) error {
	_, err := s.db.Exec(
		`INSERT INTO admins (scope, email, created_at) VALUES (?, ?, ?) ON CONFLICT(scope, email) DO NOTHING`,
		scope, strings.TrimSpace(email), s.now().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAdmin(scope, email string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM admins WHERE scope = ? AND email = ?`, scope, strings.TrimSpace(email))
	if err != nil {
		return false, fmt.Errorf("delete admin: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) AddUser(u *api.User) error {
	_, err := s.db.Exec(
		`INSERT INTO accounts (email, pass_hash, created_at) VALUES (?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(u.Email)), u.PassHash, u.CreatedAt.UTC().Format(timeLayout),
	)
	if isConstraint(err) {
		return api.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("add account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindUserByEmail(email string) (*api.User, error) {
	var (
		u         api.User
		createdAt string
	)
	err := s.db.QueryRow(`SELECT email, pass_hash, created_at FROM accounts WHERE email = ?`, strings.TrimSpace(email)).
		Scan(&u.Email, &u.PassHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}
