package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository persists enrolled identities and their face embeddings.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a PostgreSQL-backed identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Add stores a new enrolled identity. A primary key conflict maps to
// gallery.ErrDuplicateIdentity so callers see one error taxonomy.
func (r *IdentityRepository) Add(ctx context.Context, id, displayName string, embedding []float32) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (id, display_name, embedding, dim)
		VALUES ($1, $2, $3::vector, $4)
	`, id, displayName, pgvector.NewVector(embedding), len(embedding))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("identity %s: %w", id, gallery.ErrDuplicateIdentity)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// Remove deletes an enrolled identity. Returns gallery.ErrNotFound when the
// id is not enrolled.
func (r *IdentityRepository) Remove(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("identity %s: %w", id, gallery.ErrNotFound)
	}
	return nil
}

// All returns every enrolled identity in insertion order, ready to feed into
// gallery.Store.Reload.
func (r *IdentityRepository) All(ctx context.Context) ([]gallery.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, display_name, embedding
		FROM identities
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var entries []gallery.Identity
	for rows.Next() {
		var entry gallery.Identity
		var vec pgvector.Vector
		if err := rows.Scan(&entry.ID, &entry.DisplayName, &vec); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		entry.Embedding = vec.Slice()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return entries, nil
}

// Count returns the number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// LoadGallery reads all persisted identities into the in-memory store. Called
// on startup and after every enrollment change.
func (r *IdentityRepository) LoadGallery(ctx context.Context, store *gallery.Store) error {
	entries, err := r.All(ctx)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	if err := store.Reload(entries); err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	return nil
}
