package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("user_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("user_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("user_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("user_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("user_store.unsupported_no_scheme")
)

// DatabaseUserStore persists users, roles, and the user_roles join table using GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseUserStore) Driver() string {
	return store.driverLabel
}

type userRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	FirstName    string `gorm:"column:first_name;not null"`
	LastName     string `gorm:"column:last_name;not null"`
	Profession   string `gorm:"column:profession;not null;default:''"`
	Country      string `gorm:"column:country;not null;default:''"`
}

func (userRecord) TableName() string {
	return "users"
}

type roleRecord struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;uniqueIndex;not null"`
}

func (roleRecord) TableName() string {
	return "roles"
}

type userRoleRecord struct {
	UserID string `gorm:"column:user_id;primaryKey"`
	RoleID int64  `gorm:"column:role_id;primaryKey"`
}

func (userRoleRecord) TableName() string {
	return "user_roles"
}

// NewDatabaseUserStore opens databaseURL (postgres:// or sqlite://) and migrates the schema.
func NewDatabaseUserStore(ctx context.Context, databaseURL string) (*DatabaseUserStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("user_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("user_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}, &roleRecord{}, &userRoleRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseUserStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// SeedRoles inserts any missing role from names.
func (store *DatabaseUserStore) SeedRoles(ctx context.Context, names ...RoleID) error {
	for _, name := range names {
		record := roleRecord{Name: string(name)}
		if err := store.db.WithContext(ctx).Where("name = ?", record.Name).FirstOrCreate(&record).Error; err != nil {
			return fmt.Errorf("user_store.seed_roles.%s: %w", store.driverLabel, err)
		}
	}
	return nil
}

// FindRoleByName returns the seeded role.
func (store *DatabaseUserStore) FindRoleByName(ctx context.Context, name RoleID) (Role, error) {
	var record roleRecord
	err := store.db.WithContext(ctx).Where("name = ?", string(name)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Role{}, fmt.Errorf("user_store.find_role.%s: %w", store.driverLabel, ErrRoleNotFound)
		}
		return Role{}, fmt.Errorf("user_store.find_role.%s: %w", store.driverLabel, err)
	}
	return Role{ID: record.ID, Name: RoleID(record.Name)}, nil
}

// FindByEmail loads the user and eagerly materializes its roles.
func (store *DatabaseUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, err)
	}
	var roleNames []string
	roleErr := store.db.WithContext(ctx).
		Table("roles").
		Select("roles.name").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", record.ID).
		Pluck("roles.name", &roleNames).Error
	if roleErr != nil {
		return User{}, fmt.Errorf("user_store.find_roles.%s: %w", store.driverLabel, roleErr)
	}
	sort.Strings(roleNames)
	roles := make([]RoleID, 0, len(roleNames))
	for _, roleName := range roleNames {
		roles = append(roles, RoleID(roleName))
	}
	return User{
		ID:           record.ID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		FirstName:    record.FirstName,
		LastName:     record.LastName,
		Profession:   record.Profession,
		Country:      record.Country,
		Roles:        roles,
	}, nil
}

// ExistsByEmail reports whether the email is taken.
func (store *DatabaseUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&userRecord{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("user_store.exists.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}

// Create inserts the user and its role links in one transaction. The unique
// email index decides races; the loser gets ErrUserExists.
func (store *DatabaseUserStore) Create(ctx context.Context, user User) (User, error) {
	record := userRecord{
		ID:           uuid.NewString(),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Profession:   user.Profession,
		Country:      user.Country,
	}
	txErr := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		for _, roleID := range user.Roles {
			var role roleRecord
			if err := tx.Where("name = ?", string(roleID)).Take(&role).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrRoleNotFound
				}
				return err
			}
			if err := tx.Create(&userRoleRecord{UserID: record.ID, RoleID: role.ID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrRoleNotFound) {
			return User{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrRoleNotFound)
		}
		if errors.Is(txErr, gorm.ErrDuplicatedKey) || store.emailTaken(ctx, user.Email) {
			return User{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrUserExists)
		}
		return User{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, txErr)
	}
	created := cloneUser(user)
	created.ID = record.ID
	return created, nil
}

func (store *DatabaseUserStore) emailTaken(ctx context.Context, email string) bool {
	exists, err := store.ExistsByEmail(ctx, email)
	return err == nil && exists
}

// Close releases the underlying connection pool.
func (store *DatabaseUserStore) Close() error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("user_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("user_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("user_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("user_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
