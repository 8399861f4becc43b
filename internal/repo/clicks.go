package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog/log"
)

// ClickEvent is one analytics row. The hot path only ever writes these;
// reads happen from the admin API.
type ClickEvent struct {
	LinkID      int64
	ClickedAt   time.Time
	IPHash      string
	UserAgent   string
	Referrer    string
	DeviceType  string
	Browser     string
	CountryCode *string
	CountryName *string
	Region      *string
	City        *string
}

type ClickStats struct {
	Total         int64
	LastClickedAt *time.Time
}

type clickStatsRow struct {
	Total         int64 `db:"total"`
	LastClickedAt *Date `db:"last_clicked_at"`
}

type ClicksRepo struct {
	db *sql.DB
}

func NewClicksRepo(db *sql.DB) *ClicksRepo {
	return &ClicksRepo{db: db}
}

func (r *ClicksRepo) Create(ctx context.Context, event ClickEvent) error {
	executor := goqu.New("sqlite", r.db)

	log.Debug().Int64("link_id", event.LinkID).Msg("recording click")

	record := goqu.Record{
		"link_id":      event.LinkID,
		"clicked_at":   NewDate(event.ClickedAt),
		"ip_hash":      event.IPHash,
		"user_agent":   event.UserAgent,
		"referrer":     event.Referrer,
		"device_type":  event.DeviceType,
		"browser":      event.Browser,
		"country_code": event.CountryCode,
		"country_name": event.CountryName,
		"region":       event.Region,
		"city":         event.City,
	}

	query := executor.Insert("clicks").Rows(record)

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		log.Error().Err(err).Int64("link_id", event.LinkID).Msg("failed to record click")
		return err
	}

	return nil
}

func (r *ClicksRepo) GetStatsForLink(ctx context.Context, linkID int64) (*ClickStats, error) {
	executor := goqu.New("sqlite", r.db)

	query := executor.From("clicks").Where(goqu.Ex{"link_id": linkID}).Select(
		goqu.COUNT("*").As("total"),
		goqu.MAX("clicked_at").As("last_clicked_at"),
	)

	var row clickStatsRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return &ClickStats{}, nil
	}

	return &ClickStats{
		Total:         row.Total,
		LastClickedAt: row.LastClickedAt.TimePtr(),
	}, nil
}
