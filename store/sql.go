package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/date"
	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"
)

// schema is the Record Store's SQL schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	given_name TEXT,
	family_name TEXT,
	formatted TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	emails_json TEXT NOT NULL DEFAULT '[]',
	groups_json TEXT NOT NULL DEFAULT '[]',
	dept TEXT,
	risk_score INTEGER NOT NULL DEFAULT 0,
	verifier_hash TEXT,
	verifier_salt TEXT,
	created_at TEXT NOT NULL,
	last_modified TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	members_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	last_modified TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_display_name ON groups(display_name COLLATE NOCASE);
`

// OpenSQLite opens (creating if absent) a sqlite-backed database file
// at path and runs the schema migration.
func OpenSQLite(path string) (*squealx.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db := squealx.NewDb(sqlDB, "sqlite", "identityd")
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SQLUserStore is the durable counterpart to UserStore, used when
// DB_PATH names a filesystem path rather than an in-memory store.
type SQLUserStore struct {
	db *squealx.DB
}

func NewSQLUserStore(db *squealx.DB) *SQLUserStore { return &SQLUserStore{db: db} }

func (s *SQLUserStore) Upsert(ctx context.Context, rec UserRecord) error {
	existing, err := s.FindByUserName(ctx, rec.UserName)
	if err == nil && existing.ID != rec.ID {
		return conflict("unique key %q is already in use", rec.UserName)
	}
	emails, _ := json.Marshal(rec.Emails)
	groups, _ := json.Marshal(rec.Groups)
	var hash, salt string
	if rec.Verifier != nil {
		hash, salt = rec.Verifier.Hash, rec.Verifier.Salt
	}
	q := `INSERT INTO users(id, username, given_name, family_name, formatted, active, emails_json, groups_json, dept, risk_score, verifier_hash, verifier_salt, created_at, last_modified)
	      VALUES(:id, :username, :given_name, :family_name, :formatted, :active, :emails_json, :groups_json, :dept, :risk_score, :verifier_hash, :verifier_salt, :created_at, :last_modified)
	      ON CONFLICT(id) DO UPDATE SET username=:username, given_name=:given_name, family_name=:family_name, formatted=:formatted,
	        active=:active, emails_json=:emails_json, groups_json=:groups_json, dept=:dept, risk_score=:risk_score,
	        verifier_hash=:verifier_hash, verifier_salt=:verifier_salt, last_modified=:last_modified`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id": rec.ID, "username": rec.UserName, "given_name": rec.GivenName, "family_name": rec.FamilyName,
		"formatted": rec.Formatted, "active": boolToInt(rec.Active), "emails_json": string(emails), "groups_json": string(groups),
		"dept": rec.Dept, "risk_score": rec.RiskScore, "verifier_hash": hash, "verifier_salt": salt,
		"created_at": rec.Created.Format(time.RFC3339Nano), "last_modified": rec.LastModified.Format(time.RFC3339Nano),
	})
	return err
}

func (s *SQLUserStore) Get(ctx context.Context, id string) (*UserRecord, error) {
	q := `SELECT id, username, given_name, family_name, formatted, active, emails_json, groups_json, dept, risk_score, verifier_hash, verifier_salt, created_at, last_modified FROM users WHERE id = :id`
	return s.scanOne(ctx, q, map[string]any{"id": id}, notFound("user %q", id))
}

func (s *SQLUserStore) FindByUserName(ctx context.Context, userName string) (*UserRecord, error) {
	q := `SELECT id, username, given_name, family_name, formatted, active, emails_json, groups_json, dept, risk_score, verifier_hash, verifier_salt, created_at, last_modified FROM users WHERE username = :username COLLATE NOCASE`
	return s.scanOne(ctx, q, map[string]any{"username": userName}, notFound("user with userName %q", userName))
}

func (s *SQLUserStore) List(ctx context.Context, filter *Filter) ([]UserRecord, error) {
	if filter != nil && filter.Attr != "userName" {
		return nil, badFilter("unsupported filter attribute %q", filter.Attr)
	}
	q := `SELECT id, username, given_name, family_name, formatted, active, emails_json, groups_json, dept, risk_score, verifier_hash, verifier_salt, created_at, last_modified FROM users`
	args := map[string]any{}
	if filter != nil {
		q += ` WHERE username = :username COLLATE NOCASE`
		args["username"] = filter.Value
	}
	rows, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]UserRecord, 0)
	for rows.Next() {
		rec, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *SQLUserStore) Delete(ctx context.Context, id string) (*UserRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, err = s.db.NamedExecContext(ctx, `DELETE FROM users WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLUserStore) Exists(ctx context.Context, id string) bool {
	_, err := s.Get(ctx, id)
	return err == nil
}

type sqlRows interface {
	Next() bool
	Scan(dest ...any) error
}

func (s *SQLUserStore) scanOne(ctx context.Context, q string, args map[string]any, notFoundErr error) (*UserRecord, error) {
	rows, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, notFoundErr
	}
	return scanUserRow(rows)
}

func scanUserRow(rows sqlRows) (*UserRecord, error) {
	var rec UserRecord
	var active int
	var emailsJSON, groupsJSON, createdRaw, modifiedRaw string
	var hash, salt sql.NullString
	if err := rows.Scan(&rec.ID, &rec.UserName, &rec.GivenName, &rec.FamilyName, &rec.Formatted, &active,
		&emailsJSON, &groupsJSON, &rec.Dept, &rec.RiskScore, &hash, &salt, &createdRaw, &modifiedRaw); err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	rec.Active = active != 0
	_ = json.Unmarshal([]byte(emailsJSON), &rec.Emails)
	_ = json.Unmarshal([]byte(groupsJSON), &rec.Groups)
	if hash.Valid && salt.Valid && salt.String != "" {
		rec.Verifier = &PasswordVerifier{Hash: hash.String, Salt: salt.String}
	}
	rec.Created, _ = parseFlexibleTime(createdRaw)
	rec.LastModified, _ = parseFlexibleTime(modifiedRaw)
	return &rec, nil
}

// SQLGroupStore is the durable counterpart to GroupStore.
type SQLGroupStore struct {
	db *squealx.DB
}

func NewSQLGroupStore(db *squealx.DB) *SQLGroupStore { return &SQLGroupStore{db: db} }

func (s *SQLGroupStore) Upsert(ctx context.Context, rec GroupRecord) error {
	existing, err := s.FindByDisplayName(ctx, rec.DisplayName)
	if err == nil && existing.ID != rec.ID {
		return conflict("unique key %q is already in use", rec.DisplayName)
	}
	members, _ := json.Marshal(rec.Members)
	q := `INSERT INTO groups(id, display_name, members_json, created_at, last_modified)
	      VALUES(:id, :display_name, :members_json, :created_at, :last_modified)
	      ON CONFLICT(id) DO UPDATE SET display_name=:display_name, members_json=:members_json, last_modified=:last_modified`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id": rec.ID, "display_name": rec.DisplayName, "members_json": string(members),
		"created_at": rec.Created.Format(time.RFC3339Nano), "last_modified": rec.LastModified.Format(time.RFC3339Nano),
	})
	return err
}

func (s *SQLGroupStore) Get(ctx context.Context, id string) (*GroupRecord, error) {
	q := `SELECT id, display_name, members_json, created_at, last_modified FROM groups WHERE id = :id`
	return s.scanOne(ctx, q, map[string]any{"id": id}, notFound("group %q", id))
}

func (s *SQLGroupStore) FindByDisplayName(ctx context.Context, displayName string) (*GroupRecord, error) {
	q := `SELECT id, display_name, members_json, created_at, last_modified FROM groups WHERE display_name = :display_name COLLATE NOCASE`
	return s.scanOne(ctx, q, map[string]any{"display_name": displayName}, notFound("group with displayName %q", displayName))
}

func (s *SQLGroupStore) List(ctx context.Context, filter *Filter) ([]GroupRecord, error) {
	if filter != nil && filter.Attr != "displayName" {
		return nil, badFilter("unsupported filter attribute %q", filter.Attr)
	}
	q := `SELECT id, display_name, members_json, created_at, last_modified FROM groups`
	args := map[string]any{}
	if filter != nil {
		q += ` WHERE display_name = :display_name COLLATE NOCASE`
		args["display_name"] = filter.Value
	}
	rows, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]GroupRecord, 0)
	for rows.Next() {
		rec, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *SQLGroupStore) Delete(ctx context.Context, id string) (*GroupRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_, err = s.db.NamedExecContext(ctx, `DELETE FROM groups WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLGroupStore) scanOne(ctx context.Context, q string, args map[string]any, notFoundErr error) (*GroupRecord, error) {
	rows, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, notFoundErr
	}
	return scanGroupRow(rows)
}

func scanGroupRow(rows sqlRows) (*GroupRecord, error) {
	var rec GroupRecord
	var membersJSON, createdRaw, modifiedRaw string
	if err := rows.Scan(&rec.ID, &rec.DisplayName, &membersJSON, &createdRaw, &modifiedRaw); err != nil {
		return nil, fmt.Errorf("scan group row: %w", err)
	}
	_ = json.Unmarshal([]byte(membersJSON), &rec.Members)
	rec.Created, _ = parseFlexibleTime(createdRaw)
	rec.LastModified, _ = parseFlexibleTime(modifiedRaw)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseFlexibleTime delegates to oarkflow/date so timestamps written
// by a different process, or hand-edited fixtures, still parse.
func parseFlexibleTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return date.Parse(s)
}
