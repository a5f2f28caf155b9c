// Package postgres provides the Postgres-backed catalog record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

const defaultTable = "catalog_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for catalog records.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// RecordStore reads and field-level updates catalog records in Postgres.
type RecordStore struct {
	pool  pool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity for readiness checks.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

var selectColumns = []string{
	"id",
	"source_url",
	"COALESCE(source_type, '')",
	"COALESCE(source_id, '')",
	"COALESCE(title, '')",
	"COALESCE(description, '')",
	"COALESCE(duration, 0)",
	"COALESCE(thumbnail_url, '')",
	"COALESCE(creator, '')",
	"COALESCE(publication_date, '')",
	"COALESCE(tags, '{}')",
	"metadata_status",
	"enrichment_failed",
	"COALESCE(enrichment_error, '')",
	"metadata",
}

// Get fetches a record by ID, returning enrich.ErrNotFound when absent.
func (s *RecordStore) Get(ctx context.Context, id string) (enrich.Record, error) {
	query, args, err := squirrel.Select(selectColumns...).
		From(s.table).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return enrich.Record{}, fmt.Errorf("build select record query: %w", err)
	}

	var (
		rec      enrich.Record
		status   string
		metadata []byte
	)
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&rec.ID,
		&rec.SourceURL,
		&rec.SourceType,
		&rec.SourceID,
		&rec.Title,
		&rec.Description,
		&rec.Duration,
		&rec.ThumbnailURL,
		&rec.Creator,
		&rec.PublicationDate,
		&rec.Tags,
		&status,
		&rec.EnrichmentFailed,
		&rec.EnrichmentError,
		&metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return enrich.Record{}, enrich.ErrNotFound
	}
	if err != nil {
		return enrich.Record{}, fmt.Errorf("select record %s: %w", id, err)
	}
	rec.MetadataStatus = enrich.Status(status)
	if len(metadata) > 0 {
		var md enrich.Metadata
		if err := json.Unmarshal(metadata, &md); err != nil {
			return enrich.Record{}, fmt.Errorf("decode metadata for record %s: %w", id, err)
		}
		rec.Metadata = &md
	}
	return rec, nil
}

// Update writes only the set fields of update. Columns are emitted in a fixed order.
func (s *RecordStore) Update(ctx context.Context, id string, update enrich.RecordUpdate) error {
	if update.Empty() {
		return nil
	}
	builder := squirrel.Update(s.table).PlaceholderFormat(squirrel.Dollar)
	setString := func(column string, v *string) {
		if v != nil {
			builder = builder.Set(column, *v)
		}
	}
	setString("source_type", update.SourceType)
	setString("source_id", update.SourceID)
	setString("title", update.Title)
	setString("description", update.Description)
	if update.Duration != nil {
		builder = builder.Set("duration", *update.Duration)
	}
	setString("thumbnail_url", update.ThumbnailURL)
	setString("creator", update.Creator)
	setString("publication_date", update.PublicationDate)
	if update.Tags != nil {
		builder = builder.Set("tags", append([]string{}, (*update.Tags)...))
	}
	if update.MetadataStatus != nil {
		builder = builder.Set("metadata_status", string(*update.MetadataStatus))
	}
	if update.EnrichmentFailed != nil {
		builder = builder.Set("enrichment_failed", *update.EnrichmentFailed)
	}
	setString("enrichment_error", update.EnrichmentError)
	if update.Metadata != nil {
		payload, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		builder = builder.Set("metadata", payload)
	}

	query, args, err := builder.Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update record query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return enrich.ErrNotFound
	}
	return nil
}
