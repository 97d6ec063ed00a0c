package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
)

var userColumns = []string{"id", "email", "name", "picture_url", "created_at"}

// UserRepository stores account rows. Authentication lives in the fronting
// proxy; rows here only scope ownership of receipts and ledger entries.
type UserRepository interface {
	Create(ctx context.Context, email, name string, pictureURL *string) (*entity.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

type userRepository struct {
	drv     *entsql.Driver
	builder *entsql.DialectBuilder
	logger  *slog.Logger
}

func NewUserRepository(drv *entsql.Driver, logger *slog.Logger) UserRepository {
	return &userRepository{
		drv:     drv,
		builder: entsql.Dialect(drv.Dialect()),
		logger:  logger,
	}
}

func (r *userRepository) Create(ctx context.Context, email, name string, pictureURL *string) (*entity.User, error) {
	u := &entity.User{
		ID:         uuid.New(),
		Email:      email,
		Name:       name,
		PictureURL: pictureURL,
		CreatedAt:  time.Now().UTC(),
	}
	query, args := r.builder.Insert(tableUsers).
		Columns(userColumns...).
		Values(u.ID, u.Email, u.Name, strVal(u.PictureURL), u.CreatedAt).
		Query()
	if _, err := r.drv.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create user", "email", email, "error", err)
		return nil, err
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	return r.getOne(ctx, entsql.EQ("id", id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, entsql.EQ("email", email))
}

func (r *userRepository) getOne(ctx context.Context, pred *entsql.Predicate) (*entity.User, error) {
	query, args := r.builder.Select(userColumns...).
		From(r.builder.Table(tableUsers)).
		Where(pred).
		Query()
	rows, err := r.drv.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.NotFoundError("user")
	}
	var (
		u       entity.User
		picture sql.NullString
	)
	if err := rows.Scan(&u.ID, &u.Email, &u.Name, &picture, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.PictureURL = strPtr(picture)
	return &u, nil
}
