package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tyemirov/jewelauth/internal/authkit"
)

const uniqueViolationCode = "23505"

// PostgresUserStore persists users and roles in PostgreSQL through pgx.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore constructs a Postgres store. Call EnsureSchema first.
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

// SeedRoles inserts the named roles when missing.
func (store *PostgresUserStore) SeedRoles(ctx context.Context, names ...authkit.RoleID) error {
	for _, name := range names {
		if _, err := store.pool.Exec(ctx, `
INSERT INTO roles (name) VALUES ($1)
ON CONFLICT (name) DO NOTHING
`, string(name)); err != nil {
			return fmt.Errorf("authkitpg.seed_roles: %w", err)
		}
	}
	return nil
}

// FindRoleByName implements authkit.RoleStore.
func (store *PostgresUserStore) FindRoleByName(ctx context.Context, name authkit.RoleID) (authkit.Role, error) {
	var role authkit.Role
	var roleName string
	err := store.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, string(name)).Scan(&role.ID, &roleName)
	if errors.Is(err, pgx.ErrNoRows) {
		return authkit.Role{}, authkit.ErrRoleNotFound
	}
	if err != nil {
		return authkit.Role{}, fmt.Errorf("authkitpg.find_role: %w", err)
	}
	role.Name = authkit.RoleID(roleName)
	return role, nil
}

// FindByEmail loads the user and its roles.
func (store *PostgresUserStore) FindByEmail(ctx context.Context, email string) (authkit.User, error) {
	var user authkit.User
	err := store.pool.QueryRow(ctx, `
SELECT id, email, password_hash, first_name, last_name, profession, country
FROM users
WHERE email = $1
`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Profession, &user.Country)
	if errors.Is(err, pgx.ErrNoRows) {
		return authkit.User{}, authkit.ErrUserNotFound
	}
	if err != nil {
		return authkit.User{}, fmt.Errorf("authkitpg.find_user: %w", err)
	}

	rows, err := store.pool.Query(ctx, `
SELECT r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1
`, user.ID)
	if err != nil {
		return authkit.User{}, fmt.Errorf("authkitpg.find_user.roles: %w", err)
	}
	roleNames, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return authkit.User{}, fmt.Errorf("authkitpg.find_user.roles: %w", err)
	}
	sort.Strings(roleNames)
	user.Roles = make([]authkit.RoleID, 0, len(roleNames))
	for _, name := range roleNames {
		user.Roles = append(user.Roles, authkit.RoleID(name))
	}
	return user, nil
}

// ExistsByEmail implements authkit.UserStore.
func (store *PostgresUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := store.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("authkitpg.exists: %w", err)
	}
	return exists, nil
}

// Create inserts the user and its role links in one transaction. A concurrent
// insert of the same email makes ON CONFLICT skip the row and yields ErrUserExists.
func (store *PostgresUserStore) Create(ctx context.Context, user authkit.User) (authkit.User, error) {
	user.ID = uuid.NewString()
	created := user
	err := pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		var insertedID string
		insertErr := tx.QueryRow(ctx, `
INSERT INTO users (id, email, password_hash, first_name, last_name, profession, country)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (email) DO NOTHING
RETURNING id
`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Profession, user.Country).Scan(&insertedID)
		if errors.Is(insertErr, pgx.ErrNoRows) {
			return authkit.ErrUserExists
		}
		if insertErr != nil {
			return insertErr
		}
		for _, roleName := range user.Roles {
			var roleID int64
			roleErr := tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, string(roleName)).Scan(&roleID)
			if errors.Is(roleErr, pgx.ErrNoRows) {
				return fmt.Errorf("role %s: %w", roleName, authkit.ErrRoleNotFound)
			}
			if roleErr != nil {
				return roleErr
			}
			if _, linkErr := tx.Exec(ctx, `
INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`, insertedID, roleID); linkErr != nil {
				return linkErr
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, authkit.ErrUserExists) || isUniqueViolation(err) {
			return authkit.User{}, authkit.ErrUserExists
		}
		if errors.Is(err, authkit.ErrRoleNotFound) {
			return authkit.User{}, err
		}
		return authkit.User{}, fmt.Errorf("authkitpg.create: %w", err)
	}
	created.Roles = append([]authkit.RoleID(nil), user.Roles...)
	sort.Slice(created.Roles, func(left, right int) bool { return created.Roles[left] < created.Roles[right] })
	return created, nil
}

// Close releases the pool.
func (store *PostgresUserStore) Close() {
	store.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
