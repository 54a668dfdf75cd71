package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drevniko/eshop-backend/internal/notify"
)

const (
	getTemplateSQL   = `SELECT state_code, subject, body, enabled FROM email_templates WHERE state_code = $1`
	listTemplatesSQL = `SELECT state_code, subject, body, enabled FROM email_templates ORDER BY state_code`

	upsertTemplateSQL = `INSERT INTO email_templates (state_code, subject, body, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (state_code) DO UPDATE SET subject = $2, body = $3, enabled = $4`
)

var _ notify.TemplateRepository = (*EmailTemplateRepository)(nil)

// EmailTemplateRepository implements notify.TemplateRepository backed by
// PostgreSQL.
type EmailTemplateRepository struct {
	pool *pgxpool.Pool
}

// NewEmailTemplateRepository returns an EmailTemplateRepository that uses
// the given pool.
func NewEmailTemplateRepository(pool *pgxpool.Pool) *EmailTemplateRepository {
	return &EmailTemplateRepository{pool: pool}
}

func (r *EmailTemplateRepository) GetByState(ctx context.Context, stateCode string) (*notify.TemplateConfig, error) {
	rows, err := r.pool.Query(ctx, getTemplateSQL, stateCode)
	if err != nil {
		return nil, fmt.Errorf("getting email template %q: %w", stateCode, err)
	}

	t, err := pgx.CollectExactlyOneRow(rows, scanTemplate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notify.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("getting email template %q: %w", stateCode, err)
	}
	return &t, nil
}

func (r *EmailTemplateRepository) List(ctx context.Context) ([]notify.TemplateConfig, error) {
	rows, err := r.pool.Query(ctx, listTemplatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing email templates: %w", err)
	}

	templates, err := pgx.CollectRows(rows, scanTemplate)
	if err != nil {
		return nil, fmt.Errorf("listing email templates: %w", err)
	}
	return templates, nil
}

func (r *EmailTemplateRepository) Save(ctx context.Context, t *notify.TemplateConfig) error {
	_, err := r.pool.Exec(ctx, upsertTemplateSQL, t.StateCode, t.Subject, t.Body, t.Enabled)
	if err != nil {
		return fmt.Errorf("saving email template %q: %w", t.StateCode, err)
	}
	return nil
}

func scanTemplate(row pgx.CollectableRow) (notify.TemplateConfig, error) {
	var t notify.TemplateConfig
	err := row.Scan(&t.StateCode, &t.Subject, &t.Body, &t.Enabled)
	return t, err
}
