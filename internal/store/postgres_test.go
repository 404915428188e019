package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospexs-ab/prospexs-api/internal/model"
)

func TestCreateCampaign(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO campaign_progress`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO campaigns`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Acme", "https://acme.example", "en", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	c, err := s.CreateCampaign(context.Background(), "user-1", CampaignInput{
		CompanyName:    "Acme",
		CompanyWebsite: "https://acme.example",
		Language:       "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID)
	assert.NotEmpty(t, c.ID)
	assert.NotEmpty(t, c.ProgressID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCampaign_NotOwned(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM campaigns WHERE id = \$1 AND user_id = \$2`).
		WithArgs("camp-1", "intruder").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCampaign(context.Background(), "intruder", "camp-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCampaign_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE campaigns SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateCampaign(context.Background(), "user-1", "missing", CampaignInput{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCampaigns(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := mock.NewRows([]string{"id", "user_id", "company_name", "company_website", "language", "progress_id", "created_at", "updated_at"}).
		AddRow("camp-1", "user-1", "Acme", "https://acme.example", "en", "prog-1", now, now).
		AddRow("camp-2", "user-1", "Globex", "https://globex.example", "sv", "prog-2", now, now)

	mock.ExpectQuery(`FROM campaigns WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(rows)

	campaigns, err := s.ListCampaigns(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "Globex", campaigns[1].CompanyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Writing step 4 must null steps 5..10 and move latest_step back to 4 in one
// statement, so a rerun of an earlier wizard step discards later results.
func TestSaveStepResult_InvalidatesDownstream(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE campaign_progress SET step_4_result = \$1, latest_step = \$2, updated_at = \$3, step_5_result = NULL, step_6_result = NULL, step_7_result = NULL, step_8_result = NULL, step_9_result = NULL, step_10_result = NULL WHERE id = \$4`).
		WithArgs(json.RawMessage(`{"usp":"fast anvils"}`), 4, pgxmock.AnyArg(), "prog-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SaveStepResult(context.Background(), "prog-1", 4, []byte(`{"usp":"fast anvils"}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStepResult_FinalStepNullsNothing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE campaign_progress SET step_10_result = \$1, latest_step = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(json.RawMessage(`{}`), 10, pgxmock.AnyArg(), "prog-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SaveStepResult(context.Background(), "prog-1", 10, []byte(`{}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStepResult_StepOutOfRange(t *testing.T) {
	s, _ := newMockStore(t)

	err := s.SaveStepResult(context.Background(), "prog-1", 0, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step out of range")

	err = s.SaveStepResult(context.Background(), "prog-1", 11, []byte(`{}`))
	require.Error(t, err)
}

func TestGetProgress(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	cols := []string{"id", "latest_step"}
	vals := []any{"prog-1", 2}
	for i := 1; i <= model.ProgressStepCount; i++ {
		cols = append(cols, model.StepColumn(i))
	}
	// step columns: first two populated, the rest null
	vals = append(vals, []byte(`{"language":"en"}`), []byte(`{"summary":"anvils"}`))
	for i := 3; i <= model.ProgressStepCount; i++ {
		vals = append(vals, nil)
	}
	cols = append(cols, "created_at", "updated_at")
	vals = append(vals, now, now)

	mock.ExpectQuery(`FROM campaign_progress WHERE id = \$1`).
		WithArgs("prog-1").
		WillReturnRows(mock.NewRows(cols).AddRow(vals...))

	p, err := s.GetProgress(context.Background(), "prog-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.LatestStep)
	assert.JSONEq(t, `{"language":"en"}`, string(p.StepResult(1)))
	assert.Nil(t, p.StepResult(3))
	assert.Nil(t, p.StepResult(10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProgress_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM campaign_progress WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProgress(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserDetails_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM user_details WHERE user_id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetUserDetails(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
