package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/store"
	"teampulse-backend/internal/survey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ratingSurvey publishes a survey with one section and one required rating
// question, assigned to everyone in the directory.
func ratingSurvey(t *testing.T, f *fixture, anonymous bool) (*models.Survey, primitive.ObjectID, primitive.ObjectID) {
	t.Helper()
	ctx := context.Background()
	s := f.newDraft(t, SurveyMeta{IsAnonymous: anonymous})
	sec, err := f.drafts.AddSection(ctx, s.ID, "General", "")
	require.NoError(t, err)
	q, err := f.drafts.AddQuestion(ctx, s.ID, sec.ID, ratingQ("I enjoy my work", true))
	require.NoError(t, err)
	published, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)
	return published, sec.ID, q.ID
}

func submitRating(t *testing.T, f *fixture, s *models.Survey, sectionID, questionID primitive.ObjectID, employee *models.Employee, token string, value float64) *SubmitResult {
	t.Helper()
	in := SubmitInput{
		SurveyID:  s.ID,
		SectionID: sectionID,
		RunToken:  token,
		Answers:   []models.Answer{{QuestionID: questionID, Number: &value}},
	}
	if employee != nil {
		in.EmployeeID = &employee.ID
	}
	result, err := f.responses.SubmitSection(context.Background(), in)
	require.NoError(t, err)
	return result
}

func TestIdentifiedSurveyFullCycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(3, "Engineering")
	s, secID, qID := ratingSurvey(t, f, false)

	for i, v := range []float64{5, 3, 4} {
		result := submitRating(t, f, s, secID, qID, &team[i], "", v)
		assert.True(t, result.Completed)
		assert.Empty(t, result.RunToken)
	}

	results, err := f.aggregation.ComputeSurveyStats(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, results.TotalRecipients)
	assert.Equal(t, 3, results.CompletedCount)
	assert.InDelta(t, 1.0, results.CompletionRate, 1e-9)

	require.Len(t, results.Questions, 1)
	st := results.Questions[0]
	assert.Equal(t, 3, st.Count)
	require.NotNil(t, st.Average)
	assert.InDelta(t, 4.0, *st.Average, 1e-9)
	assert.Equal(t, map[string]int{"1": 0, "2": 0, "3": 1, "4": 1, "5": 1}, st.Distribution)

	// One completion fact per respondent, identity attached
	facts := f.sink.all()
	require.Len(t, facts, 3)
	for _, fact := range facts {
		assert.False(t, fact.Anonymous)
		assert.NotEmpty(t, fact.EmployeeID)
	}
}

func TestAnonymousSurveyNeverStoresIdentity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(3, "Engineering")
	s, secID, qID := ratingSurvey(t, f, true)

	// Two of three respond
	r1 := submitRating(t, f, s, secID, qID, &team[0], "", 4)
	assert.True(t, r1.Completed)
	assert.NotEmpty(t, r1.RunToken)
	r2 := submitRating(t, f, s, secID, qID, &team[1], "", 2)
	assert.True(t, r2.Completed)
	assert.NotEqual(t, r1.RunToken, r2.RunToken)

	// No stored response carries any recipient reference
	stored, err := f.store.ListSurveyResponses(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, r := range stored {
		assert.Nil(t, r.RecipientID)
		assert.NotEmpty(t, r.RunToken)
	}

	// Recipient rows stay pending; the tally is the only completion signal
	_, completed, err := f.store.CountRecipients(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, completed)

	results, err := f.aggregation.ComputeSurveyStats(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, results.TotalRecipients)
	assert.Equal(t, 2, results.CompletedCount)
	assert.InDelta(t, 2.0/3.0, results.CompletionRate, 1e-9)

	// Completion facts carry no identity either
	for _, fact := range f.sink.all() {
		assert.True(t, fact.Anonymous)
		assert.Empty(t, fact.EmployeeID)
	}
}

func TestRequiredQuestionValidationReportsOnlyOffenders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")

	s := f.newDraft(t, SurveyMeta{})
	sec, _ := f.drafts.AddSection(ctx, s.ID, "General", "")
	rating, err := f.drafts.AddQuestion(ctx, s.ID, sec.ID, ratingQ("I enjoy my work", false))
	require.NoError(t, err)
	mc, err := f.drafts.AddQuestion(ctx, s.ID, sec.ID, choiceQ("Which perks matter?", models.QuestionTypeMultipleChoice, true, "Remote work", "Learning budget", "Gym"))
	require.NoError(t, err)
	_, err = f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	five := 5.0
	_, err = f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  sec.ID,
		EmployeeID: &team[0].ID,
		Answers: []models.Answer{
			{QuestionID: rating.ID, Number: &five},
			{QuestionID: mc.ID}, // required, left empty
		},
	})

	var verrs survey.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, mc.ID.Hex(), verrs[0].QuestionID)
	assert.Equal(t, survey.CodeRequired, verrs[0].Code)

	// A failed submission persists nothing
	stored, err := f.store.ListSurveyResponses(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAnswerOutsideSectionRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")
	s, secID, _ := ratingSurvey(t, f, false)

	five := 5.0
	_, err := f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  secID,
		EmployeeID: &team[0].ID,
		Answers:    []models.Answer{{QuestionID: primitive.NewObjectID(), Number: &five}},
	})
	var verrs survey.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	found := false
	for _, ve := range verrs {
		if ve.Code == survey.CodeUnknownQuestion {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResubmissionReplacesBeforeFinalize(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")

	// Two sections so the first submission does not finalize
	s := f.newDraft(t, SurveyMeta{})
	sec1, _ := f.drafts.AddSection(ctx, s.ID, "First", "")
	q1, err := f.drafts.AddQuestion(ctx, s.ID, sec1.ID, ratingQ("I enjoy my work", true))
	require.NoError(t, err)
	sec2, _ := f.drafts.AddSection(ctx, s.ID, "Second", "")
	q2, err := f.drafts.AddQuestion(ctx, s.ID, sec2.ID, ratingQ("I feel valued", true))
	require.NoError(t, err)
	published, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	result := submitRating(t, f, published, sec1.ID, q1.ID, &team[0], "", 2)
	assert.False(t, result.Completed)

	// Change of heart before finishing
	result = submitRating(t, f, published, sec1.ID, q1.ID, &team[0], "", 5)
	assert.False(t, result.Completed)

	result = submitRating(t, f, published, sec2.ID, q2.ID, &team[0], "", 4)
	assert.True(t, result.Completed)

	// Only the final value of each question counts, in both stat paths
	computed, err := f.aggregation.ComputeSurveyStats(ctx, s.ID)
	require.NoError(t, err)
	cached, err := f.aggregation.CachedSurveyStats(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, computed.Questions, 2)
	assert.Equal(t, 1, computed.Questions[0].Count)
	assert.Equal(t, 1, computed.Questions[0].Distribution["5"])
	assert.Equal(t, 0, computed.Questions[0].Distribution["2"])
	assert.Equal(t, computed.Questions, cached.Questions)

	// Once finalized, edits are refused
	_, err = f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  sec1.ID,
		EmployeeID: &team[0].ID,
		Answers:    []models.Answer{{QuestionID: q1.ID, Number: num(3)}},
	})
	var completedErr *survey.AlreadyCompletedError
	require.ErrorAs(t, err, &completedErr)
}

func num(v float64) *float64 { return &v }

func TestConcurrentFinalSubmitHasOneWinner(t *testing.T) {
	f := newFixture()
	team := f.seedEmployees(1, "Engineering")
	s, secID, qID := ratingSurvey(t, f, false)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			four := 4.0
			_, errs[i] = f.responses.SubmitSection(context.Background(), SubmitInput{
				SurveyID:   s.ID,
				SectionID:  secID,
				EmployeeID: &team[0].ID,
				Answers:    []models.Answer{{QuestionID: qID, Number: &four}},
			})
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	var completedErr *survey.AlreadyCompletedError
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorAs(t, err, &completedErr)
			losers++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)

	// Exactly one completion fact, one counted response
	assert.Len(t, f.sink.all(), 1)
	results, err := f.aggregation.ComputeSurveyStats(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, results.Questions[0].Count)
	assert.Equal(t, 1, results.CompletedCount)
}

// raceStore runs a hook between the service's pending check and the guarded
// write, widening the window a concurrent finalizer could slip into.
type raceStore struct {
	store.Store
	mu     sync.Mutex
	before func()
}

func (rs *raceStore) UpsertResponses(ctx context.Context, rows []models.Response) ([]models.Response, error) {
	rs.mu.Lock()
	hook := rs.before
	rs.before = nil
	rs.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rs.Store.UpsertResponses(ctx, rows)
}

func TestFinalizedAnswersSurviveRacingSubmitter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")
	s, secID, qID := ratingSurvey(t, f, false)

	raced := &raceStore{Store: f.store}
	racedResponses := NewResponseService(raced, f.sink, testLogger())

	// Another submission lands and finalizes after this one passed the
	// pending check but before its rows are written.
	raced.before = func() {
		submitRating(t, f, s, secID, qID, &team[0], "", 5)
	}

	_, err := racedResponses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  secID,
		EmployeeID: &team[0].ID,
		Answers:    []models.Answer{{QuestionID: qID, Number: num(1)}},
	})
	var completedErr *survey.AlreadyCompletedError
	require.ErrorAs(t, err, &completedErr)

	// The finalized answer set is untouched by the loser's write.
	stored, err := f.store.ListSurveyResponses(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].Answer.Number)
	assert.Equal(t, 5.0, *stored[0].Answer.Number)

	results, err := f.aggregation.ComputeSurveyStats(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, results.Questions[0].Count)
	assert.Equal(t, 1, results.Questions[0].Distribution["5"])
	assert.Equal(t, 0, results.Questions[0].Distribution["1"])
	assert.Len(t, f.sink.all(), 1)
}

func TestAnonymousRunResumesAcrossSections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")

	s := f.newDraft(t, SurveyMeta{IsAnonymous: true})
	sec1, _ := f.drafts.AddSection(ctx, s.ID, "First", "")
	q1, _ := f.drafts.AddQuestion(ctx, s.ID, sec1.ID, ratingQ("I enjoy my work", true))
	sec2, _ := f.drafts.AddSection(ctx, s.ID, "Second", "")
	q2, _ := f.drafts.AddQuestion(ctx, s.ID, sec2.ID, ratingQ("I feel valued", true))
	published, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	result := submitRating(t, f, published, sec1.ID, q1.ID, &team[0], "", 3)
	assert.False(t, result.Completed)
	token := result.RunToken
	require.NotEmpty(t, token)

	result = submitRating(t, f, published, sec2.ID, q2.ID, &team[0], token, 4)
	assert.True(t, result.Completed)
	assert.Equal(t, token, result.RunToken)

	// The finalized run refuses further edits
	_, err = f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:  s.ID,
		SectionID: sec1.ID,
		RunToken:  token,
		Answers:   []models.Answer{{QuestionID: q1.ID, Number: num(1)}},
	})
	var completedErr *survey.AlreadyCompletedError
	require.ErrorAs(t, err, &completedErr)

	// A token from another survey is rejected
	other, otherSec, otherQ := ratingSurvey(t, f, true)
	_, err = f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:  other.ID,
		SectionID: otherSec,
		RunToken:  token,
		Answers:   []models.Answer{{QuestionID: otherQ, Number: num(2)}},
	})
	var notFoundErr *survey.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestSubmitRequiresActiveSurvey(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")

	// Draft
	s := f.newDraft(t, SurveyMeta{})
	sec, _ := f.drafts.AddSection(ctx, s.ID, "General", "")
	q, _ := f.drafts.AddQuestion(ctx, s.ID, sec.ID, ratingQ("I enjoy my work", true))

	var stateErr *survey.InvalidStateError
	_, err := f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  sec.ID,
		EmployeeID: &team[0].ID,
		Answers:    []models.Answer{{QuestionID: q.ID, Number: num(3)}},
	})
	require.ErrorAs(t, err, &stateErr)

	// Completed
	_, err = f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.publication.Complete(ctx, s.ID, time.Now()))
	_, err = f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  sec.ID,
		EmployeeID: &team[0].ID,
		Answers:    []models.Answer{{QuestionID: q.ID, Number: num(3)}},
	})
	require.ErrorAs(t, err, &stateErr)
}

func TestUnassignedEmployeeCannotSubmit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedEmployees(1, "Engineering")
	s, secID, qID := ratingSurvey(t, f, false)

	outsider := f.store.SeedEmployee(models.Employee{Email: "late@corp.example", Department: "Engineering", IsActive: true})
	_, err := f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  secID,
		EmployeeID: &outsider.ID,
		Answers:    []models.Answer{{QuestionID: qID, Number: num(3)}},
	})
	var notFoundErr *survey.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestProgressTracksAnsweredQuestions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")

	s := f.newDraft(t, SurveyMeta{})
	sec1, _ := f.drafts.AddSection(ctx, s.ID, "First", "")
	q1, _ := f.drafts.AddQuestion(ctx, s.ID, sec1.ID, ratingQ("I enjoy my work", true))
	sec2, _ := f.drafts.AddSection(ctx, s.ID, "Second", "")
	q2, _ := f.drafts.AddQuestion(ctx, s.ID, sec2.ID, ratingQ("I feel valued", true))
	published, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	view, err := f.responses.Progress(ctx, s.ID, &team[0].ID, "")
	require.NoError(t, err)
	assert.Empty(t, view.AnsweredQuestionIDs)
	assert.False(t, view.Completed)

	submitRating(t, f, published, sec1.ID, q1.ID, &team[0], "", 4)

	view, err = f.responses.Progress(ctx, s.ID, &team[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{q1.ID.Hex()}, view.AnsweredQuestionIDs)
	assert.False(t, view.Completed)

	submitRating(t, f, published, sec2.ID, q2.ID, &team[0], "", 4)

	view, err = f.responses.Progress(ctx, s.ID, &team[0].ID, "")
	require.NoError(t, err)
	assert.Len(t, view.AnsweredQuestionIDs, 2)
	assert.True(t, view.Completed)
}

func TestAssignedSurveysHideArchived(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")

	active, _, _ := ratingSurvey(t, f, false)
	done, _, _ := ratingSurvey(t, f, false)
	require.NoError(t, f.publication.Complete(ctx, done.ID, time.Now()))
	archived, _, _ := ratingSurvey(t, f, false)
	require.NoError(t, f.publication.Complete(ctx, archived.ID, time.Now()))
	require.NoError(t, f.publication.Archive(ctx, archived.ID, time.Now()))

	assigned, err := f.responses.AssignedSurveys(ctx, team[0].ID)
	require.NoError(t, err)
	ids := make([]primitive.ObjectID, 0, len(assigned))
	for _, s := range assigned {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []primitive.ObjectID{active.ID, done.ID}, ids)
}

func TestOptionalQuestionLeftBlankStillCompletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")

	s := f.newDraft(t, SurveyMeta{})
	sec, _ := f.drafts.AddSection(ctx, s.ID, "General", "")
	required, _ := f.drafts.AddQuestion(ctx, s.ID, sec.ID, ratingQ("I enjoy my work", true))
	optional, err := f.drafts.AddQuestion(ctx, s.ID, sec.ID, models.Question{
		Text: "Anything else?",
		Type: models.QuestionTypeText,
	})
	require.NoError(t, err)
	_, err = f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)

	result, err := f.responses.SubmitSection(ctx, SubmitInput{
		SurveyID:   s.ID,
		SectionID:  sec.ID,
		EmployeeID: &team[0].ID,
		Answers: []models.Answer{
			{QuestionID: required.ID, Number: num(4)},
			{QuestionID: optional.ID}, // blank optional answer
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Completed)

	stored, err := f.store.ListSurveyResponses(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1) // blank answers are never persisted
}
