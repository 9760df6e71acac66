// Package postgres implements store.CandidateStore on PostgreSQL. The
// conditional status transitions are expressed as single UPDATE
// statements whose WHERE clause carries the expected current state, so
// the compare and the set happen atomically inside the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tobin/anthology-api/internal/domain"
	"github.com/tobin/anthology-api/internal/platform/logger"
	"github.com/tobin/anthology-api/internal/store"
)

// PostgreSQL error codes.
const pgUniqueViolationCode = "23505"

const candidateTable = "queue_items"

var candidateColumns = []string{
	"id", "title", "content", "source_identifier", "source_url",
	"external_ref", "score_synthesis", "score_relevance",
	"score_uniqueness", "total_score", "status", "skip_reason",
	"queued_at", "selected_at", "used_at", "expires_at",
	"consuming_article_id",
}

// CandidateStore implements store.CandidateStore using PostgreSQL.
type CandidateStore struct {
	db     store.DBTX
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

// Ensure CandidateStore implements the store interface.
var _ store.CandidateStore = (*CandidateStore)(nil)

// NewCandidateStore creates a PostgreSQL-backed candidate store. The
// database handle must be initialized and managed by the caller. If
// logger is nil, the process default is used.
func NewCandidateStore(db store.DBTX, log *slog.Logger) *CandidateStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &CandidateStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: log.With(slog.String("component", "candidate_store")),
	}
}

// Insert implements store.CandidateStore.Insert.
// Returns store.ErrDuplicate when the dedupe constraints reject the row.
func (s *CandidateStore) Insert(ctx context.Context, item *domain.CandidateItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		log.Warn("candidate validation failed during insert",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query, args, err := s.sb.Insert(candidateTable).
		Columns(candidateColumns...).
		Values(
			item.ID, item.Title, item.Content, item.SourceIdentifier,
			item.SourceURL, item.ExternalRef, item.Scores.Synthesis,
			item.Scores.Relevance, item.Scores.Uniqueness,
			item.TotalScore, item.Status, item.SkipReason,
			item.QueuedAt, item.SelectedAt, item.UsedAt, item.ExpiresAt,
			item.ConsumingArticleID,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Debug("duplicate candidate rejected",
				slog.String("source", item.SourceIdentifier),
				slog.String("title", item.Title))
			return store.ErrDuplicate
		}
		log.Error("failed to insert candidate",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID.String()))
		return store.NewStoreError("candidate", "insert", err)
	}

	return nil
}

// GetByID implements store.CandidateStore.GetByID.
func (s *CandidateStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CandidateItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Select(candidateColumns...).
		From(candidateTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	item, err := scanCandidate(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCandidateNotFound
		}
		log.Error("failed to get candidate by ID",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return nil, store.NewStoreError("candidate", "get", err)
	}

	return item, nil
}

// FindSelectable implements store.CandidateStore.FindSelectable. The
// expiry filter is part of the query, so rows the sweep has not reached
// yet never show up.
func (s *CandidateStore) FindSelectable(ctx context.Context, now time.Time) ([]*domain.CandidateItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Select(candidateColumns...).
		From(candidateTable).
		Where(sq.Eq{"status": domain.CandidateStatusPending}).
		Where(sq.Gt{"expires_at": now}).
		OrderBy("total_score DESC", "queued_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build selectable query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query selectable candidates",
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("candidate", "find_selectable", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	items := []*domain.CandidateItem{}
	for rows.Next() {
		item, err := scanCandidate(rows)
		if err != nil {
			log.Error("failed to scan candidate row",
				slog.String("error", err.Error()))
			return nil, store.NewStoreError("candidate", "find_selectable", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("candidate", "find_selectable", err)
	}

	return items, nil
}

// Select implements store.CandidateStore.Select. The pending/unexpired
// check rides in the WHERE clause of the UPDATE, so overlapping
// selectors race inside the database and exactly one wins each row.
func (s *CandidateStore) Select(ctx context.Context, id uuid.UUID, now time.Time) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Update(candidateTable).
		Set("status", domain.CandidateStatusSelected).
		Set("selected_at", now).
		Where(sq.Eq{"id": id, "status": domain.CandidateStatusPending}).
		Where(sq.Gt{"expires_at": now}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build select transition: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to execute select transition",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return store.NewStoreError("candidate", "select", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("candidate", "select", err)
	}
	if affected == 0 {
		return store.ErrNotSelectable
	}

	return nil
}

// MarkUsed implements store.CandidateStore.MarkUsed. The primary path
// is a conditional selected -> used transition; when that matches no
// row, the current state is read only to classify the failure, never to
// decide a write.
func (s *CandidateStore) MarkUsed(ctx context.Context, id uuid.UUID, articleID uuid.UUID, now time.Time) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Update(candidateTable).
		Set("status", domain.CandidateStatusUsed).
		Set("used_at", now).
		Set("consuming_article_id", articleID).
		Where(sq.Eq{"id": id, "status": domain.CandidateStatusSelected}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build mark-used transition: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to execute mark-used transition",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return false, store.NewStoreError("candidate", "mark_used", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, store.NewStoreError("candidate", "mark_used", err)
	}
	if affected == 1 {
		return true, nil
	}

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if item.Status == domain.CandidateStatusUsed &&
		item.ConsumingArticleID != nil && *item.ConsumingArticleID == articleID {
		// Already consumed by this article; the repeat call is a no-op.
		return false, nil
	}

	return false, store.ErrInvalidTransition
}

// ResetToPending implements store.CandidateStore.ResetToPending.
func (s *CandidateStore) ResetToPending(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Update(candidateTable).
		Set("status", domain.CandidateStatusPending).
		Set("selected_at", nil).
		Where(sq.Eq{"id": id, "status": domain.CandidateStatusSelected}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build reset transition: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to reset candidate to pending",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return store.NewStoreError("candidate", "reset", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("candidate", "reset", err)
	}
	if affected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	}

	return nil
}

// ResetStaleSelected implements store.CandidateStore.ResetStaleSelected.
func (s *CandidateStore) ResetStaleSelected(ctx context.Context, cutoff time.Time) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Update(candidateTable).
		Set("status", domain.CandidateStatusPending).
		Set("selected_at", nil).
		Where(sq.Eq{"status": domain.CandidateStatusSelected}).
		Where(sq.Lt{"selected_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build stale reset: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to reset stale selections",
			slog.String("error", err.Error()))
		return 0, store.NewStoreError("candidate", "reset_stale", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("candidate", "reset_stale", err)
	}

	if affected > 0 {
		log.Info("reset stale selected candidates",
			slog.Int64("count", affected))
	}
	return int(affected), nil
}

// Skip implements store.CandidateStore.Skip.
func (s *CandidateStore) Skip(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Update(candidateTable).
		Set("status", domain.CandidateStatusSkipped).
		Set("skip_reason", reason).
		Where(sq.Eq{"id": id, "status": domain.CandidateStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build skip transition: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to skip candidate",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return store.NewStoreError("candidate", "skip", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("candidate", "skip", err)
	}
	if affected == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	}

	return nil
}

// ExpirePending implements store.CandidateStore.ExpirePending.
func (s *CandidateStore) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := s.sb.Update(candidateTable).
		Set("status", domain.CandidateStatusExpired).
		Where(sq.Eq{"status": domain.CandidateStatusPending}).
		Where(sq.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build expiry sweep: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to expire pending candidates",
			slog.String("error", err.Error()))
		return 0, store.NewStoreError("candidate", "expire", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("candidate", "expire", err)
	}
	return int(affected), nil
}

// UpdateScores implements store.CandidateStore.UpdateScores.
func (s *CandidateStore) UpdateScores(ctx context.Context, id uuid.UUID, scores domain.Scores) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := scores.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query, args, err := s.sb.Update(candidateTable).
		Set("score_synthesis", scores.Synthesis).
		Set("score_relevance", scores.Relevance).
		Set("score_uniqueness", scores.Uniqueness).
		Set("total_score", scores.Total()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build score update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update candidate scores",
			slog.String("error", err.Error()),
			slog.String("item_id", id.String()))
		return store.NewStoreError("candidate", "update_scores", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("candidate", "update_scores", err)
	}
	if affected == 0 {
		return store.ErrCandidateNotFound
	}

	return nil
}

// CountByStatus implements store.CandidateStore.CountByStatus.
func (s *CandidateStore) CountByStatus(ctx context.Context) (map[domain.CandidateStatus]int, error) {
	query, args, err := s.sb.Select("status", "COUNT(*)").
		From(candidateTable).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build status count: %w", err)
	}

	raw, err := s.countGrouped(ctx, query, args)
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.CandidateStatus]int, len(raw))
	for key, count := range raw {
		counts[domain.CandidateStatus(key)] = count
	}
	return counts, nil
}

// CountSelectableBySource implements store.CandidateStore.CountSelectableBySource.
func (s *CandidateStore) CountSelectableBySource(ctx context.Context, now time.Time) (map[string]int, error) {
	query, args, err := s.sb.Select("source_identifier", "COUNT(*)").
		From(candidateTable).
		Where(sq.Eq{"status": domain.CandidateStatusPending}).
		Where(sq.Gt{"expires_at": now}).
		GroupBy("source_identifier").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build source count: %w", err)
	}

	return s.countGrouped(ctx, query, args)
}

func (s *CandidateStore) countGrouped(ctx context.Context, query string, args []any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("candidate", "count", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, store.NewStoreError("candidate", "count", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("candidate", "count", err)
	}
	return counts, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*domain.CandidateItem, error) {
	var item domain.CandidateItem
	var status string
	var selectedAt, usedAt sql.NullTime
	var articleID uuid.NullUUID

	err := row.Scan(
		&item.ID, &item.Title, &item.Content, &item.SourceIdentifier,
		&item.SourceURL, &item.ExternalRef, &item.Scores.Synthesis,
		&item.Scores.Relevance, &item.Scores.Uniqueness,
		&item.TotalScore, &status, &item.SkipReason,
		&item.QueuedAt, &selectedAt, &usedAt, &item.ExpiresAt,
		&articleID,
	)
	if err != nil {
		return nil, err
	}

	item.Status = domain.CandidateStatus(status)
	if selectedAt.Valid {
		item.SelectedAt = &selectedAt.Time
	}
	if usedAt.Valid {
		item.UsedAt = &usedAt.Time
	}
	if articleID.Valid {
		item.ConsumingArticleID = &articleID.UUID
	}

	return &item, nil
}
