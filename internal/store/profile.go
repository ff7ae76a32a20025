package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/famcall/internal/call"
)

// unknownName is shown for users missing from the directory.
const unknownName = "Someone"

// UpsertProfile inserts or updates a directory entry. Empty fields keep the
// stored value.
func (db *DB) UpsertProfile(ctx context.Context, p call.Profile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, avatar, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE profiles.name END,
			avatar = CASE WHEN excluded.avatar != '' THEN excluded.avatar ELSE profiles.avatar END,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Avatar, time.Now().UnixMilli())
	return err
}

// ProfileOf returns the profile of id, or a placeholder when it is unknown.
func (db *DB) ProfileOf(ctx context.Context, id string) (call.Profile, error) {
	p := call.Profile{ID: id}
	err := db.QueryRowContext(ctx, `SELECT name, avatar FROM profiles WHERE id = ?`, id).Scan(&p.Name, &p.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return call.Profile{ID: id, Name: unknownName}, nil
	}
	if err != nil {
		return call.Profile{}, err
	}
	if p.Name == "" {
		p.Name = unknownName
	}
	return p, nil
}

// Profiles lists the directory ordered by name.
func (db *DB) Profiles(ctx context.Context) ([]call.Profile, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, avatar FROM profiles ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []call.Profile
	for rows.Next() {
		var p call.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Avatar); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
