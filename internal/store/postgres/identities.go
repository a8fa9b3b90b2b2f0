package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Repository stores identities and descriptors.
type Repository struct {
	pool *Pool
}

// NewRepository creates a repository over the pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

type identityRow struct {
	id, name, org, family string
}

// LoadAll returns every identity with its descriptors.
func (r *Repository) LoadAll(ctx context.Context) ([]face.StoredIdentity, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, org, family FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	heads, err := scanIdentityRows(rows)
	if err != nil {
		return nil, err
	}
	return r.attachDescriptors(ctx, heads)
}

// Get returns one identity. ok is false when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (face.StoredIdentity, bool, error) {
	var row identityRow
	err := r.pool.QueryRow(ctx, `SELECT id, name, org, family FROM identities WHERE id = $1`, id).
		Scan(&row.id, &row.name, &row.org, &row.family)
	if errors.Is(err, sql.ErrNoRows) {
		return face.StoredIdentity{}, false, nil
	}
	if err != nil {
		return face.StoredIdentity{}, false, fmt.Errorf("get identity %s: %w", id, err)
	}

	out, err := r.attachDescriptors(ctx, []identityRow{row})
	if err != nil {
		return face.StoredIdentity{}, false, err
	}
	return out[0], true, nil
}

// FindByName returns the identity IDs whose normalised name matches within an org.
func (r *Repository) FindByName(ctx context.Context, org, name string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM identities WHERE org = $1 AND name_normalized = $2 ORDER BY id`,
		facematch.NormalizeOrgCode(org), facematch.NormalizePersonName(name))
	if err != nil {
		return nil, fmt.Errorf("find identity by name: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity ids: %w", err)
	}
	return ids, nil
}

// Save inserts or replaces an identity and its full descriptor set.
func (r *Repository) Save(ctx context.Context, id face.StoredIdentity) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, name, name_normalized, org, family)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_normalized = EXCLUDED.name_normalized,
			org = EXCLUDED.org,
			family = EXCLUDED.family,
			updated_at = NOW()
	`, id.ID, id.Name, facematch.NormalizePersonName(id.Name), facematch.NormalizeOrgCode(id.Org), id.Family.String())
	if err != nil {
		return fmt.Errorf("upsert identity %s: %w", id.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM descriptors WHERE identity_id = $1`, id.ID); err != nil {
		return fmt.Errorf("clear descriptors of %s: %w", id.ID, err)
	}

	for _, d := range id.Descriptors {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO descriptors (identity_id, family, dim, embedding) VALUES ($1, $2, $3, $4)`,
			id.ID, d.Family().String(), d.Len(), pgvector.NewVector(d.Values()))
		if err != nil {
			return fmt.Errorf("insert descriptor of %s: %w", id.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit identity %s: %w", id.ID, err)
	}
	return nil
}

// Delete removes an identity and its descriptors.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete identity %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of identities and descriptors.
func (r *Repository) Count(ctx context.Context) (identities, descriptors int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM identities), (SELECT COUNT(*) FROM descriptors)`,
	).Scan(&identities, &descriptors)
	if err != nil {
		return 0, 0, fmt.Errorf("count identities: %w", err)
	}
	return identities, descriptors, nil
}

func scanIdentityRows(rows *sql.Rows) ([]identityRow, error) {
	defer rows.Close()

	var out []identityRow
	for rows.Next() {
		var row identityRow
		if err := rows.Scan(&row.id, &row.name, &row.org, &row.family); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// attachDescriptors loads the descriptors of the given identities in one query.
func (r *Repository) attachDescriptors(ctx context.Context, heads []identityRow) ([]face.StoredIdentity, error) {
	if len(heads) == 0 {
		return nil, nil
	}

	ids := make([]string, len(heads))
	for i, h := range heads {
		ids[i] = h.id
	}

	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, family, embedding
		FROM descriptors
		WHERE identity_id = ANY($1)
		ORDER BY identity_id, id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	byID := make(map[string][]face.Descriptor, len(heads))
	for rows.Next() {
		var (
			owner, family string
			vec           pgvector.Vector
		)
		if err := rows.Scan(&owner, &family, &vec); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		f, err := face.ParseFamily(family)
		if err != nil {
			return nil, fmt.Errorf("descriptor of %s: %w", owner, err)
		}
		d, err := face.NewDescriptor(f, vec.Slice())
		if err != nil {
			return nil, fmt.Errorf("descriptor of %s: %w", owner, err)
		}
		byID[owner] = append(byID[owner], d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}

	out := make([]face.StoredIdentity, 0, len(heads))
	for _, h := range heads {
		f, err := face.ParseFamily(h.family)
		if err != nil {
			return nil, fmt.Errorf("identity %s: %w", h.id, err)
		}
		si, err := face.NewStoredIdentity(h.id, h.name, h.org, f, byID[h.id])
		if err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, nil
}
