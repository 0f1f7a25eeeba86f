package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/todo-api/internal/database"
)

// Repository handles user persistence in a relational database through Bun.
// Email uniqueness relies on the unique index on users.email.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user into the database
func (r *Repository) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := storeTime()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt

	if _, err := r.db.NewInsert().Model(toDBUser(u)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *Repository) getBy(ctx context.Context, column string, value any) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("? = ?", bun.Ident(column), value).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}

	return fromDBUser(dbUser), nil
}

// List returns users matching f, newest first.
func (r *Repository) List(ctx context.Context, f Filter, p Page) ([]*User, error) {
	var rows []database.User
	q := r.db.NewSelect().
		Model(&rows).
		Order("created_at DESC").
		Offset(p.Skip).
		Limit(p.Limit)

	if f.Name != nil {
		q = q.Where("name = ?", *f.Name)
	}
	if f.Email != nil {
		q = q.Where("email = ?", *f.Email)
	}
	if f.Role != nil {
		q = q.Where("role = ?", string(*f.Role))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(rows))
	for i := range rows {
		users = append(users, fromDBUser(&rows[i]))
	}
	return users, nil
}

// Update writes the mutable fields of u.
func (r *Repository) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = storeTime()

	res, err := r.db.NewUpdate().
		Model(toDBUser(u)).
		Column("email", "password_hash", "name", "role", "picture", "facebook_id", "google_id", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return requireAffected(res)
}

// Delete removes the user with the given ID
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*database.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return requireAffected(res)
}

const upsertOAuthQuery = `
INSERT INTO users (id, email, password_hash, name, role, picture, ?, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (email) DO UPDATE SET
	? = excluded.?,
	name = CASE WHEN users.name = '' THEN excluded.name ELSE users.name END,
	picture = CASE WHEN users.picture = '' THEN excluded.picture ELSE users.picture END,
	updated_at = excluded.updated_at
RETURNING *`

// UpsertOAuth links identity to the user that already carries the link,
// otherwise to the user with the same email, otherwise inserts candidate.
// Each step is a single statement, so concurrent calls for a new identity
// converge on one row.
func (r *Repository) UpsertOAuth(ctx context.Context, identity OAuthIdentity, candidate *User) (*User, error) {
	column, err := providerColumn(identity.Provider)
	if err != nil {
		return nil, err
	}

	u, err := r.linkExisting(ctx, column, identity)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return u, err
	}

	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	now := storeTime()

	dbUser := new(database.User)
	err = r.db.NewRaw(upsertOAuthQuery,
		bun.Ident(column),
		candidate.ID, identity.Email, candidate.PasswordHash, candidate.Name, string(candidate.Role), candidate.Picture,
		identity.ExternalID, now, now,
		bun.Ident(column), bun.Ident(column),
	).Scan(ctx, dbUser)
	if err != nil {
		if isUniqueViolation(err) {
			// The provider link was claimed concurrently by another row.
			return r.linkExisting(ctx, column, identity)
		}
		return nil, fmt.Errorf("failed to upsert oauth user: %w", err)
	}

	return fromDBUser(dbUser), nil
}

func (r *Repository) linkExisting(ctx context.Context, column string, identity OAuthIdentity) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewUpdate().
		Model(dbUser).
		Set("name = CASE WHEN name = '' THEN ? ELSE name END", identity.Name).
		Set("picture = CASE WHEN picture = '' THEN ? ELSE picture END", identity.Picture).
		Set("updated_at = ?", storeTime()).
		Where("? = ?", bun.Ident(column), identity.ExternalID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to link oauth user: %w", err)
	}

	return fromDBUser(dbUser), nil
}

func providerColumn(p Provider) (string, error) {
	switch p {
	case ProviderFacebook:
		return "facebook_id", nil
	case ProviderGoogle:
		return "google_id", nil
	default:
		return "", fmt.Errorf("unsupported provider %q", p)
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes unique constraint errors from Postgres and SQLite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// storeTime is the current time at the precision Postgres keeps.
func storeTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func toDBUser(u *User) *database.User {
	dbUser := &database.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         string(u.Role),
		Picture:      u.Picture,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if id, ok := u.Providers[ProviderFacebook]; ok && id != "" {
		dbUser.FacebookID = &id
	}
	if id, ok := u.Providers[ProviderGoogle]; ok && id != "" {
		dbUser.GoogleID = &id
	}
	return dbUser
}

func fromDBUser(dbUser *database.User) *User {
	u := &User{
		ID:           dbUser.ID,
		Email:        dbUser.Email,
		PasswordHash: dbUser.PasswordHash,
		Name:         dbUser.Name,
		Role:         parseRole(dbUser.Role),
		Picture:      dbUser.Picture,
		CreatedAt:    dbUser.CreatedAt,
		UpdatedAt:    dbUser.UpdatedAt,
	}
	if dbUser.FacebookID != nil || dbUser.GoogleID != nil {
		u.Providers = ProviderLinks{}
		if dbUser.FacebookID != nil {
			u.Providers[ProviderFacebook] = *dbUser.FacebookID
		}
		if dbUser.GoogleID != nil {
			u.Providers[ProviderGoogle] = *dbUser.GoogleID
		}
	}
	return u
}
