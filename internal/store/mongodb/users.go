package mongodb

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, errors.Wrap(store.ErrInvalidInput, "email and password are required")
	}
	user.Email = email
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	if _, err := s.col(colUsers).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.Wrapf(store.ErrConflict, "email %s already registered", email)
		}
		return nil, errors.Wrap(err, "insert user")
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := findOne(ctx, s.col(colUsers), filter, &user, "user"); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	if err := findOne(ctx, s.col(colUsers), bson.M{"_id": id}, &user, "user"); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := s.col(colAuditLogs).InsertOne(ctx, entry); err != nil {
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{"created_at": bson.M{"$gte": from, "$lt": to}}
	return findAll[domain.AuditLog](ctx, s.col(colAuditLogs), filter, opts)
}
