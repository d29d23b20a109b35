package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

const (
	roomColumns = "id, type, members, messages, settings, COALESCE(invite_code, ''), COALESCE(pair_key, ''), version"
	userColumns = "id, username, email, password_hash, role, banned, role_expires_at, data, created_at"
)

type PgRoomChatRepository struct {
	conn *sql.DB
}

func NewPgRoomChatRepository(dsn string) (*PgRoomChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgRoomChatRepository{conn: db}, nil
}

// Migrate applies the embedded schema migrations.
func (db *PgRoomChatRepository) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	driver, err := pgmigrate.WithInstance(db.conn, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

func (db *PgRoomChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgRoomChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (RoomRecord, error) {
	var rec RoomRecord
	err := row.Scan(
		&rec.Id,
		&rec.Type,
		&rec.Members,
		&rec.Messages,
		&rec.Settings,
		&rec.InviteCode,
		&rec.PairKey,
		&rec.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomRecord{}, ErrNotFound
	}

	return rec, err
}

func scanUser(row rowScanner) (UserRecord, error) {
	var (
		rec       UserRecord
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&rec.Id,
		&rec.Username,
		&rec.Email,
		&rec.PasswordHash,
		&rec.Role,
		&rec.Banned,
		&expiresAt,
		&rec.Data,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		rec.RoleExpiresAt = &t
	}

	return rec, err
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}

	return err
}

func (db *PgRoomChatRepository) GetRoom(id string) (RoomRecord, error) {
	row := db.conn.QueryRow("SELECT "+roomColumns+" FROM rooms WHERE id = $1", id)
	return scanRoom(row)
}

func (db *PgRoomChatRepository) GetRoomByInviteCode(code string) (RoomRecord, error) {
	row := db.conn.QueryRow("SELECT "+roomColumns+" FROM rooms WHERE invite_code = $1", code)
	return scanRoom(row)
}

func (db *PgRoomChatRepository) GetRoomByPairKey(key string) (RoomRecord, error) {
	row := db.conn.QueryRow("SELECT "+roomColumns+" FROM rooms WHERE pair_key = $1", key)
	return scanRoom(row)
}

func (db *PgRoomChatRepository) CreateRoom(rec RoomRecord) (RoomRecord, error) {
	rec.Version = 1
	_, err := db.conn.Exec(
		"INSERT INTO rooms (id, type, members, messages, settings, invite_code, pair_key, version) "+
			"VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)",
		rec.Id,
		rec.Type,
		rec.Members,
		rec.Messages,
		rec.Settings,
		rec.InviteCode,
		rec.PairKey,
		rec.Version,
	)
	if err != nil {
		return RoomRecord{}, mapWriteError(err)
	}

	return rec, nil
}

// SaveRoom replaces the whole row if the stored version still matches
// rec.Version, and returns the record with its new version.
func (db *PgRoomChatRepository) SaveRoom(rec RoomRecord) (RoomRecord, error) {
	res, err := db.conn.Exec(
		"UPDATE rooms SET members = $2, messages = $3, settings = $4, "+
			"invite_code = NULLIF($5, ''), version = version + 1 "+
			"WHERE id = $1 AND version = $6",
		rec.Id,
		rec.Members,
		rec.Messages,
		rec.Settings,
		rec.InviteCode,
		rec.Version,
	)
	if err != nil {
		return RoomRecord{}, mapWriteError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return RoomRecord{}, err
	}

	if n == 0 {
		if _, err := db.GetRoom(rec.Id); err != nil {
			return RoomRecord{}, err
		}
		return RoomRecord{}, ErrConflict
	}

	rec.Version++
	return rec, nil
}

func (db *PgRoomChatRepository) ListRooms() ([]RoomRecord, error) {
	rows, err := db.conn.Query("SELECT " + roomColumns + " FROM rooms ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []RoomRecord
	for rows.Next() {
		rec, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, rec)
	}

	return rooms, rows.Err()
}

func (db *PgRoomChatRepository) QuarantineBlob(blob QuarantinedBlob) error {
	_, err := db.conn.Exec(
		"INSERT INTO quarantined_blobs (owner_id, field, raw, created_at) VALUES ($1, $2, $3, $4)",
		blob.OwnerId,
		blob.Field,
		blob.Raw,
		blob.CreatedAt,
	)

	return err
}

func (db *PgRoomChatRepository) GetUser(id string) (UserRecord, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE id = $1 LIMIT 1", id)
	return scanUser(row)
}

func (db *PgRoomChatRepository) GetUserByEmail(email string) (UserRecord, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE email = $1 LIMIT 1", email)
	return scanUser(row)
}

func (db *PgRoomChatRepository) GetUserByUsername(username string) (UserRecord, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE username = $1 LIMIT 1", username)
	return scanUser(row)
}

func (db *PgRoomChatRepository) CreateUser(rec UserRecord) (UserRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.Exec(
		"INSERT INTO users (id, username, email, password_hash, role, banned, role_expires_at, data, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		rec.Id,
		rec.Username,
		rec.Email,
		rec.PasswordHash,
		rec.Role,
		rec.Banned,
		rec.RoleExpiresAt,
		rec.Data,
		rec.CreatedAt,
	)
	if err != nil {
		return UserRecord{}, mapWriteError(err)
	}

	return rec, nil
}

func (db *PgRoomChatRepository) SaveUser(rec UserRecord) (UserRecord, error) {
	res, err := db.conn.Exec(
		"UPDATE users SET username = $2, email = $3, password_hash = $4, role = $5, "+
			"banned = $6, role_expires_at = $7, data = $8 WHERE id = $1",
		rec.Id,
		rec.Username,
		rec.Email,
		rec.PasswordHash,
		rec.Role,
		rec.Banned,
		rec.RoleExpiresAt,
		rec.Data,
	)
	if err != nil {
		return UserRecord{}, mapWriteError(err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return UserRecord{}, ErrNotFound
	}

	return rec, nil
}

func (db *PgRoomChatRepository) DeleteUser(id string) error {
	res, err := db.conn.Exec("DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (db *PgRoomChatRepository) SearchUsers(query string) ([]UserRecord, error) {
	rows, err := db.conn.Query(
		"SELECT "+userColumns+" FROM users WHERE username ILIKE $1 ORDER BY username LIMIT 20",
		"%"+query+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserRecord
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, rec)
	}

	return users, rows.Err()
}
