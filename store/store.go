package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/core"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// User is the remote record of an account. The store only ever sees the
// wrapped data key and its salt, both opaque.
type User struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	EDEK      string    `gorm:"not null" json:"edek"`
	KEKSalt   string    `gorm:"not null" json:"kekSalt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) Keys() *core.WrappedKeys {
	return &core.WrappedKeys{EDEK: u.EDEK, KEKSalt: u.KEKSalt}
}

// Record is one encrypted payload, kept as the JSON the client produced.
type Record struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	UserID    string    `gorm:"index;not null" json:"userId"`
	Format    string    `gorm:"index;not null" json:"format"`
	Payload   string    `gorm:"not null" json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.AutoMigrate(&User{}, &Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// >>>

func (s *Store) CreateUser(email string, keys *core.WrappedKeys) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || keys == nil || keys.EDEK == "" || keys.KEKSalt == "" {
		return nil, fmt.Errorf("email and keys are required")
	}

	user := &User{
		ID:      uuid.NewString(),
		Email:   email,
		EDEK:    keys.EDEK,
		KEKSalt: keys.KEKSalt,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("could not create user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUser(id string) (*User, error) {
	return s.first("id = ?", id)
}

func (s *Store) FindByEmail(email string) (*User, error) {
	return s.first("email = ?", NormalizeEmail(email))
}

func (s *Store) first(query string, arg any) (*User, error) {
	user := new(User)
	err := s.db.Where(query, arg).First(user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateKeys replaces the wrapped key material of a user, after a password
// change.
func (s *Store) UpdateKeys(id string, keys *core.WrappedKeys) error {
	if keys == nil || keys.EDEK == "" || keys.KEKSalt == "" {
		return fmt.Errorf("keys are required")
	}
	res := s.db.Model(&User{}).Where("id = ?", id).Updates(User{
		EDEK:    keys.EDEK,
		KEKSalt: keys.KEKSalt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

// >>>

func (s *Store) SaveRecord(userID, format string, payload []byte) (*Record, error) {
	record := &Record{
		ID:      uuid.NewString(),
		UserID:  userID,
		Format:  format,
		Payload: string(payload),
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("could not save record: %w", err)
	}
	return record, nil
}

// Records returns the records of userID, oldest first. An empty format
// matches every record.
func (s *Store) Records(userID, format string) ([]Record, error) {
	q := s.db.Where("user_id = ?", userID)
	if format != "" {
		q = q.Where("format = ?", format)
	}

	records := make([]Record, 0)
	if err := q.Order("created_at, id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
