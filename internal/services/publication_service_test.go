package services

import (
	"context"
	"testing"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/survey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publishable builds a draft with one section and one rating question.
func publishable(t *testing.T, f *fixture, meta SurveyMeta) *models.Survey {
	t.Helper()
	s := f.newDraft(t, meta)
	sec, err := f.drafts.AddSection(context.Background(), s.ID, "General", "")
	require.NoError(t, err)
	_, err = f.drafts.AddQuestion(context.Background(), s.ID, sec.ID, ratingQ("I enjoy my work", true))
	require.NoError(t, err)
	loaded, err := f.store.GetSurvey(context.Background(), s.ID)
	require.NoError(t, err)
	return loaded
}

func TestPublishEmptySurveyFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedEmployees(3, "Engineering")
	s := f.newDraft(t, SurveyMeta{})
	_, err := f.drafts.AddSection(ctx, s.ID, "Empty", "")
	require.NoError(t, err)

	_, err = f.publication.Publish(ctx, s.ID, time.Now())
	var emptyErr *survey.EmptySurveyError
	require.ErrorAs(t, err, &emptyErr)

	// Still a draft, still editable
	loaded, err := f.store.GetSurvey(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStateDraft, loaded.State)
}

func TestPublishSnapshotsDepartmentAudience(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	eng := f.seedEmployees(3, "Engineering")
	f.seedEmployees(2, "Sales")
	inactive := models.Employee{Email: "gone@corp.example", Department: "Engineering", IsActive: false}
	f.store.SeedEmployee(inactive)

	s := publishable(t, f, SurveyMeta{
		Audience: models.AudienceSelector{Kind: models.AudienceDepartment, Department: "Engineering"},
	})

	published, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStateActive, published.State)
	assert.NotNil(t, published.PublishedAt)
	assert.Equal(t, 3, published.TotalRecipients)

	recipients, err := f.store.ListRecipients(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 3)
	byEmployee := map[string]bool{}
	for _, r := range recipients {
		assert.Equal(t, models.RecipientStatusPending, r.Status)
		byEmployee[r.EmployeeID.Hex()] = true
	}
	for _, e := range eng {
		assert.True(t, byEmployee[e.ID.Hex()])
	}

	// A hire after publish does not join the snapshot
	f.seedEmployees(1, "Engineering")
	recipients, err = f.store.ListRecipients(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, recipients, 3)
}

func TestPublishTwiceFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedEmployees(1, "Engineering")
	s := publishable(t, f, SurveyMeta{})

	_, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	_, err = f.publication.Publish(ctx, s.ID, time.Now())
	var stateErr *survey.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.SurveyStateActive, stateErr.State)
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedEmployees(1, "Engineering")
	s := publishable(t, f, SurveyMeta{})
	_, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	require.NoError(t, f.publication.Complete(ctx, s.ID, time.Now()))
	require.NoError(t, f.publication.Complete(ctx, s.ID, time.Now()))

	loaded, err := f.store.GetSurvey(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStateCompleted, loaded.State)
	assert.NotNil(t, loaded.CompletedAt)
}

func TestArchiveRequiresCompleted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedEmployees(1, "Engineering")
	s := publishable(t, f, SurveyMeta{})
	_, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	var stateErr *survey.InvalidStateError
	err = f.publication.Archive(ctx, s.ID, time.Now())
	require.ErrorAs(t, err, &stateErr)

	require.NoError(t, f.publication.Complete(ctx, s.ID, time.Now()))
	require.NoError(t, f.publication.Archive(ctx, s.ID, time.Now()))

	loaded, err := f.store.GetSurvey(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStateArchived, loaded.State)
}

func TestSweepClosesDueSurveys(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedEmployees(1, "Engineering")

	now := time.Now()
	due := publishable(t, f, SurveyMeta{Title: "Due", CloseDate: now.Add(-time.Hour)})
	open := publishable(t, f, SurveyMeta{Title: "Open", CloseDate: now.Add(24 * time.Hour)})
	endless := publishable(t, f, SurveyMeta{Title: "No close date"})

	for _, s := range []*models.Survey{due, open, endless} {
		_, err := f.publication.Publish(ctx, s.ID, now.Add(-2*time.Hour))
		require.NoError(t, err)
	}

	swept, err := f.publication.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	loaded, _ := f.store.GetSurvey(ctx, due.ID)
	assert.Equal(t, models.SurveyStateCompleted, loaded.State)
	loaded, _ = f.store.GetSurvey(ctx, open.ID)
	assert.Equal(t, models.SurveyStateActive, loaded.State)
	loaded, _ = f.store.GetSurvey(ctx, endless.ID)
	assert.Equal(t, models.SurveyStateActive, loaded.State)
}

func TestReminderDue(t *testing.T) {
	f := newFixture()
	published := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := &models.Survey{ReminderDays: 3, PublishedAt: &published}
	assert.Equal(t, published.AddDate(0, 0, 3), f.publication.ReminderDue(s))

	assert.True(t, f.publication.ReminderDue(&models.Survey{ReminderDays: 0, PublishedAt: &published}).IsZero())
	assert.True(t, f.publication.ReminderDue(&models.Survey{ReminderDays: 3}).IsZero())
}
