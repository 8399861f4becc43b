package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog/log"
)

var (
	ErrLinkNotFound   = errors.New("link not found")
	ErrShortCodeTaken = errors.New("short code already taken")
)

// ExpiryType selects which conditions can expire a link. Fixed at creation.
type ExpiryType string

const (
	ExpiryNone  ExpiryType = "NONE"
	ExpiryTime  ExpiryType = "TIME"
	ExpiryViews ExpiryType = "VIEWS"
	ExpiryBoth  ExpiryType = "BOTH"
)

func (t ExpiryType) UsesTime() bool {
	return t == ExpiryTime || t == ExpiryBoth
}

func (t ExpiryType) UsesViews() bool {
	return t == ExpiryViews || t == ExpiryBoth
}

func (t ExpiryType) Valid() bool {
	switch t {
	case ExpiryNone, ExpiryTime, ExpiryViews, ExpiryBoth:
		return true
	}
	return false
}

type Link struct {
	ID            int64      `json:"id"`
	ShortCode     string     `json:"short_code"`
	TargetURL     string     `json:"target_url"`
	Title         *string    `json:"title"`
	ExpiryType    ExpiryType `json:"expiry_type"`
	ExpiresAt     *time.Time `json:"expires_at"`
	MaxViews      *int64     `json:"max_views"`
	CurrentViews  int64      `json:"current_views"`
	TotalClicks   int64      `json:"total_clicks"`
	IsActive      bool       `json:"is_active"`
	PasswordHash  *string    `json:"-"`
	CustomMessage *string    `json:"custom_message"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HasPassword reports whether access to the link is password gated.
func (l *Link) HasPassword() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

type linkRow struct {
	ID            int64   `db:"id" goqu:"skipinsert,skipupdate"`
	ShortCode     string  `db:"short_code"`
	TargetURL     string  `db:"target_url"`
	Title         *string `db:"title"`
	ExpiryType    string  `db:"expiry_type"`
	ExpiresAt     *Date   `db:"expires_at"`
	MaxViews      *int64  `db:"max_views"`
	CurrentViews  int64   `db:"current_views"`
	TotalClicks   int64   `db:"total_clicks"`
	IsActive      bool    `db:"is_active"`
	PasswordHash  *string `db:"password_hash"`
	CustomMessage *string `db:"custom_message"`
	CreatedAt     Date    `db:"created_at" goqu:"skipupdate"`
}

var linkColumns = []any{
	"id", "short_code", "target_url", "title", "expiry_type", "expires_at",
	"max_views", "current_views", "total_clicks", "is_active",
	"password_hash", "custom_message", "created_at",
}

func (r *linkRow) toDomain() *Link {
	return &Link{
		ID:            r.ID,
		ShortCode:     r.ShortCode,
		TargetURL:     r.TargetURL,
		Title:         r.Title,
		ExpiryType:    ExpiryType(r.ExpiryType),
		ExpiresAt:     r.ExpiresAt.TimePtr(),
		MaxViews:      r.MaxViews,
		CurrentViews:  r.CurrentViews,
		TotalClicks:   r.TotalClicks,
		IsActive:      r.IsActive,
		PasswordHash:  r.PasswordHash,
		CustomMessage: r.CustomMessage,
		CreatedAt:     r.CreatedAt.Time(),
	}
}

type CreateLinkParams struct {
	ShortCode     string
	TargetURL     string
	Title         *string
	ExpiryType    ExpiryType
	ExpiresAt     *time.Time
	MaxViews      *int64
	PasswordHash  *string
	CustomMessage *string
}

type UpdateLinkParams struct {
	TargetURL     *string
	Title         *string
	CustomMessage *string
	Deactivate    bool
}

type LinksRepo struct {
	db *sql.DB
}

func NewLinksRepo(db *sql.DB) *LinksRepo {
	return &LinksRepo{db: db}
}

func (r *LinksRepo) Create(ctx context.Context, params CreateLinkParams) (*Link, error) {
	executor := goqu.New("sqlite", r.db)

	log.Debug().Str("short_code", params.ShortCode).Str("url", params.TargetURL).Msg("creating link")

	record := goqu.Record{
		"short_code":     params.ShortCode,
		"target_url":     params.TargetURL,
		"title":          params.Title,
		"expiry_type":    string(params.ExpiryType),
		"expires_at":     nil,
		"max_views":      params.MaxViews,
		"current_views":  0,
		"total_clicks":   0,
		"is_active":      true,
		"password_hash":  params.PasswordHash,
		"custom_message": params.CustomMessage,
		"created_at":     NewDate(time.Now()),
	}
	if params.ExpiresAt != nil {
		record["expires_at"] = NewDate(*params.ExpiresAt)
	}

	query := executor.Insert("links").Rows(record).Returning(linkColumns...)

	var row linkRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrShortCodeTaken
		}
		log.Error().Err(err).Str("short_code", params.ShortCode).Msg("failed to create link")
		return nil, err
	}
	if !found {
		return nil, errors.New("failed to create link")
	}

	link := row.toDomain()
	log.Info().Int64("id", link.ID).Str("short_code", link.ShortCode).Msg("link created")

	return link, nil
}

// GetByShortCode reads a link snapshot without locking. The resolver treats
// the result as potentially stale and re-checks after incrementing.
func (r *LinksRepo) GetByShortCode(ctx context.Context, code string) (*Link, error) {
	executor := goqu.New("sqlite", r.db)

	query := executor.From("links").Where(goqu.Ex{"short_code": code}).Select(linkColumns...)

	var row linkRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		log.Error().Err(err).Str("short_code", code).Msg("failed to fetch link")
		return nil, err
	}
	if !found {
		return nil, ErrLinkNotFound
	}

	return row.toDomain(), nil
}

func (r *LinksRepo) GetByID(ctx context.Context, id int64) (*Link, error) {
	executor := goqu.New("sqlite", r.db)

	query := executor.From("links").Where(goqu.Ex{"id": id}).Select(linkColumns...)

	var row linkRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrLinkNotFound
	}

	return row.toDomain(), nil
}

// ShortCodeExists is the collision probe used by the generator.
func (r *LinksRepo) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	executor := goqu.New("sqlite", r.db)

	count, err := executor.From("links").Where(goqu.Ex{"short_code": code}).CountContext(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IncrementViews bumps both counters in a single statement so concurrent
// requests never lose updates, and returns the post-increment values.
func (r *LinksRepo) IncrementViews(ctx context.Context, id int64) (currentViews, totalClicks int64, err error) {
	executor := goqu.New("sqlite", r.db)

	query := executor.Update("links").
		Set(goqu.Record{
			"current_views": goqu.L("current_views + 1"),
			"total_clicks":  goqu.L("total_clicks + 1"),
		}).
		Where(goqu.Ex{"id": id}).
		Returning("current_views", "total_clicks")

	var row struct {
		CurrentViews int64 `db:"current_views"`
		TotalClicks  int64 `db:"total_clicks"`
	}
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		log.Error().Err(err).Int64("link_id", id).Msg("failed to increment views")
		return 0, 0, err
	}
	if !found {
		return 0, 0, ErrLinkNotFound
	}

	return row.CurrentViews, row.TotalClicks, nil
}

// Deactivate durably tombstones a link. The transition is one-way; nothing
// ever sets is_active back to true.
func (r *LinksRepo) Deactivate(ctx context.Context, id int64) error {
	executor := goqu.New("sqlite", r.db)

	query := executor.Update("links").
		Set(goqu.Record{"is_active": false}).
		Where(goqu.Ex{"id": id})

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		log.Error().Err(err).Int64("link_id", id).Msg("failed to deactivate link")
		return err
	}

	log.Info().Int64("link_id", id).Msg("link deactivated")
	return nil
}

func (r *LinksRepo) Update(ctx context.Context, id int64, params UpdateLinkParams) (*Link, error) {
	executor := goqu.New("sqlite", r.db)

	record := goqu.Record{}
	if params.TargetURL != nil {
		record["target_url"] = *params.TargetURL
	}
	if params.Title != nil {
		record["title"] = *params.Title
	}
	if params.CustomMessage != nil {
		record["custom_message"] = *params.CustomMessage
	}
	if params.Deactivate {
		record["is_active"] = false
	}

	if len(record) == 0 {
		return r.GetByID(ctx, id)
	}

	query := executor.Update("links").Set(record).Where(goqu.Ex{"id": id}).Returning(linkColumns...)

	var row linkRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrLinkNotFound
	}

	return row.toDomain(), nil
}

func (r *LinksRepo) Delete(ctx context.Context, id int64) error {
	executor := goqu.New("sqlite", r.db)

	result, err := executor.Delete("links").Where(goqu.Ex{"id": id}).Executor().ExecContext(ctx)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLinkNotFound
	}

	log.Info().Int64("link_id", id).Msg("link deleted")
	return nil
}

func (r *LinksRepo) ListAll(ctx context.Context) ([]*Link, error) {
	executor := goqu.New("sqlite", r.db)

	query := executor.From("links").Select(linkColumns...).Order(goqu.C("created_at").Desc())

	var rows []linkRow
	if err := query.Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, err
	}

	links := make([]*Link, len(rows))
	for i, row := range rows {
		links[i] = row.toDomain()
	}

	return links, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
