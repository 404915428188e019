package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/prospexs-ab/prospexs-api/internal/db"
	"github.com/prospexs-ab/prospexs-api/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems needing direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaign_progress (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	latest_step    INTEGER NOT NULL DEFAULT 0,
	step_1_result  JSONB,
	step_2_result  JSONB,
	step_3_result  JSONB,
	step_4_result  JSONB,
	step_5_result  JSONB,
	step_6_result  JSONB,
	step_7_result  JSONB,
	step_8_result  JSONB,
	step_9_result  JSONB,
	step_10_result JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaigns (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id         TEXT NOT NULL,
	company_name    TEXT NOT NULL DEFAULT '',
	company_website TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL DEFAULT 'en',
	progress_id     TEXT NOT NULL REFERENCES campaign_progress(id),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_user_id ON campaigns(user_id);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_name      TEXT NOT NULL,
	job_step      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'queued',
	campaign_id   TEXT NOT NULL,
	progress_data JSONB,
	retries       INTEGER,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(job_name, status, job_step, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_stale ON jobs(status, updated_at);

CREATE TABLE IF NOT EXISTS user_details (
	user_id      TEXT PRIMARY KEY,
	company_name TEXT NOT NULL DEFAULT '',
	company_url  TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT 'en'
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Campaigns ---

func (s *PostgresStore) CreateCampaign(ctx context.Context, userID string, in CampaignInput) (*model.Campaign, error) {
	campaignID := uuid.New().String()
	progressID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create campaign")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Progress row first: campaigns.progress_id references it.
	_, err = tx.Exec(ctx,
		`INSERT INTO campaign_progress (id, latest_step, created_at, updated_at) VALUES ($1, 0, $2, $3)`,
		progressID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert progress")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO campaigns (id, user_id, company_name, company_website, language, progress_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		campaignID, userID, in.CompanyName, in.CompanyWebsite, in.Language, progressID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert campaign")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit create campaign")
	}

	return &model.Campaign{
		ID:             campaignID,
		UserID:         userID,
		CompanyName:    in.CompanyName,
		CompanyWebsite: in.CompanyWebsite,
		Language:       in.Language,
		ProgressID:     progressID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, userID, campaignID string) (*model.Campaign, error) {
	var c model.Campaign
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, company_name, company_website, language, progress_id, created_at, updated_at
		 FROM campaigns WHERE id = $1 AND user_id = $2`,
		campaignID, userID,
	).Scan(&c.ID, &c.UserID, &c.CompanyName, &c.CompanyWebsite, &c.Language, &c.ProgressID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get campaign %s", campaignID)
	}
	return &c, nil
}

func (s *PostgresStore) GetCampaignByID(ctx context.Context, campaignID string) (*model.Campaign, error) {
	var c model.Campaign
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, company_name, company_website, language, progress_id, created_at, updated_at
		 FROM campaigns WHERE id = $1`,
		campaignID,
	).Scan(&c.ID, &c.UserID, &c.CompanyName, &c.CompanyWebsite, &c.Language, &c.ProgressID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get campaign %s", campaignID)
	}
	return &c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, userID string) ([]model.Campaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, company_name, company_website, language, progress_id, created_at, updated_at
		 FROM campaigns WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.CompanyName, &c.CompanyWebsite, &c.Language, &c.ProgressID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, userID, campaignID string, in CampaignInput) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET company_name = $1, company_website = $2, language = $3, updated_at = $4
		 WHERE id = $5 AND user_id = $6`,
		in.CompanyName, in.CompanyWebsite, in.Language, time.Now().UTC(), campaignID, userID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Progress documents ---

var progressColumns = func() string {
	cols := []string{"id", "latest_step"}
	for i := 1; i <= model.ProgressStepCount; i++ {
		cols = append(cols, model.StepColumn(i))
	}
	cols = append(cols, "created_at", "updated_at")
	return strings.Join(cols, ", ")
}()

func (s *PostgresStore) GetProgress(ctx context.Context, progressID string) (*model.Progress, error) {
	var p model.Progress
	dest := []any{&p.ID, &p.LatestStep}
	for i := 0; i < model.ProgressStepCount; i++ {
		dest = append(dest, &p.Steps[i])
	}
	dest = append(dest, &p.CreatedAt, &p.UpdatedAt)

	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM campaign_progress WHERE id = $1`, progressColumns),
		progressID,
	).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get progress %s", progressID)
	}
	return &p, nil
}

// SaveStepResult writes step N's payload, advances latest_step to N, and
// nulls every later step in the same statement. Returning to an earlier step
// therefore always discards downstream cached computations.
func (s *PostgresStore) SaveStepResult(ctx context.Context, progressID string, step int, payload json.RawMessage) error {
	if step < 1 || step > model.ProgressStepCount {
		return eris.Errorf("postgres: step out of range: %d", step)
	}

	sets := []string{
		fmt.Sprintf("%s = $1", model.StepColumn(step)),
		"latest_step = $2",
		"updated_at = $3",
	}
	for i := step + 1; i <= model.ProgressStepCount; i++ {
		sets = append(sets, fmt.Sprintf("%s = NULL", model.StepColumn(i)))
	}

	query := fmt.Sprintf(`UPDATE campaign_progress SET %s WHERE id = $4`, strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, query, payload, step, time.Now().UTC(), progressID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save step %d result", step)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- User details ---

func (s *PostgresStore) GetUserDetails(ctx context.Context, userID string) (*model.UserDetails, error) {
	var u model.UserDetails
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, company_name, company_url, language FROM user_details WHERE user_id = $1`,
		userID,
	).Scan(&u.UserID, &u.CompanyName, &u.CompanyURL, &u.Language)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get user details %s", userID)
	}
	return &u, nil
}
