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

// mixedSurvey publishes one section with a rating, a multiple choice and a
// text question, assigned to everyone seeded so far.
func mixedSurvey(t *testing.T, f *fixture, anonymous bool) (*models.Survey, *models.Section) {
	t.Helper()
	ctx := context.Background()
	s := f.newDraft(t, SurveyMeta{IsAnonymous: anonymous})
	sec, err := f.drafts.AddSection(ctx, s.ID, "General", "")
	require.NoError(t, err)
	_, err = f.drafts.AddQuestion(ctx, s.ID, sec.ID, ratingQ("I enjoy my work", true))
	require.NoError(t, err)
	_, err = f.drafts.AddQuestion(ctx, s.ID, sec.ID, choiceQ("Which perks matter?", models.QuestionTypeMultipleChoice, true, "Remote work", "Learning budget", "Gym"))
	require.NoError(t, err)
	_, err = f.drafts.AddQuestion(ctx, s.ID, sec.ID, models.Question{Text: "Anything else?", Type: models.QuestionTypeText})
	require.NoError(t, err)

	published, err := f.publication.Publish(ctx, s.ID, time.Now())
	require.NoError(t, err)
	return published, published.FindSection(sec.ID)
}

type respondentAnswers struct {
	rating  float64
	options []int // option indexes on the choice question
	text    string
}

func submitMixed(t *testing.T, f *fixture, s *models.Survey, sec *models.Section, employee *models.Employee, in respondentAnswers) {
	t.Helper()
	rating := &sec.Questions[0]
	choice := &sec.Questions[1]
	text := &sec.Questions[2]

	answers := []models.Answer{
		{QuestionID: rating.ID, Number: &in.rating},
	}
	choiceAnswer := models.Answer{QuestionID: choice.ID}
	for _, idx := range in.options {
		choiceAnswer.OptionIDs = append(choiceAnswer.OptionIDs, choice.Config.Options[idx].ID)
	}
	answers = append(answers, choiceAnswer)
	if in.text != "" {
		answers = append(answers, models.Answer{QuestionID: text.ID, Text: in.text})
	}

	_, err := f.responses.SubmitSection(context.Background(), SubmitInput{
		SurveyID:   s.ID,
		SectionID:  sec.ID,
		EmployeeID: &employee.ID,
		Answers:    answers,
	})
	require.NoError(t, err)
}

var aggregationInputs = []respondentAnswers{
	{rating: 5, options: []int{0, 1}, text: "great team"},
	{rating: 3, options: []int{1}},
	{rating: 4, options: []int{0}, text: "needs better coffee"},
	{rating: 4, options: []int{2, 0}},
}

func TestCachedStatsMatchBatchRecompute(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(len(aggregationInputs), "Engineering")
	s, sec := mixedSurvey(t, f, false)

	for i := range aggregationInputs {
		submitMixed(t, f, s, sec, &team[i], aggregationInputs[i])
	}

	computed, err := f.aggregation.ComputeSurveyStats(ctx, s.ID)
	require.NoError(t, err)
	cached, err := f.aggregation.CachedSurveyStats(ctx, s.ID)
	require.NoError(t, err)

	assert.Equal(t, computed.TotalRecipients, cached.TotalRecipients)
	assert.Equal(t, computed.CompletedCount, cached.CompletedCount)
	assert.Equal(t, computed.Questions, cached.Questions)
}

func TestAggregationIsOrderIndependent(t *testing.T) {
	run := func(order []int) (*models.Section, []models.Stat) {
		f := newFixture()
		team := f.seedEmployees(len(aggregationInputs), "Engineering")
		s, sec := mixedSurvey(t, f, false)
		for _, i := range order {
			submitMixed(t, f, s, sec, &team[i], aggregationInputs[i])
		}
		results, err := f.aggregation.ComputeSurveyStats(context.Background(), s.ID)
		require.NoError(t, err)
		return sec, results.Questions
	}

	forwardSec, forward := run([]int{0, 1, 2, 3})
	shuffledSec, shuffled := run([]int{2, 0, 3, 1})

	// Each fixture mints its own question and option ids; map the shuffled
	// survey's option keys onto the forward one so only the counts compare.
	rekey := make(map[string]string)
	for i := range shuffledSec.Questions {
		for j, opt := range shuffledSec.Questions[i].Config.Options {
			rekey[opt.ID.Hex()] = forwardSec.Questions[i].Config.Options[j].ID.Hex()
		}
	}

	require.Len(t, shuffled, len(forward))
	for i := range forward {
		assert.Equal(t, forward[i].QuestionType, shuffled[i].QuestionType)
		assert.Equal(t, forward[i].Count, shuffled[i].Count)
		assert.Equal(t, forward[i].Average, shuffled[i].Average)
		assert.Equal(t, forward[i].Distribution, rekeyed(shuffled[i].Distribution, rekey))
		assert.Equal(t, forward[i].PositionDistribution, rekeyed(shuffled[i].PositionDistribution, rekey))
	}
}

func rekeyed(dist map[string]int, rekey map[string]string) map[string]int {
	if dist == nil {
		return nil
	}
	out := make(map[string]int, len(dist))
	for k, v := range dist {
		if mapped, ok := rekey[k]; ok {
			k = mapped
		}
		out[k] = v
	}
	return out
}

func TestAggregateRefusesDrafts(t *testing.T) {
	f := newFixture()
	s := f.newDraft(t, SurveyMeta{})

	var stateErr *survey.InvalidStateError
	_, err := f.aggregation.ComputeSurveyStats(context.Background(), s.ID)
	require.ErrorAs(t, err, &stateErr)
	_, err = f.aggregation.CachedSurveyStats(context.Background(), s.ID)
	require.ErrorAs(t, err, &stateErr)
}

func TestTextAnswersListedForIdentifiedSurveys(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(len(aggregationInputs), "Engineering")
	s, sec := mixedSurvey(t, f, false)
	for i := range aggregationInputs {
		submitMixed(t, f, s, sec, &team[i], aggregationInputs[i])
	}

	textQ := sec.Questions[2].ID
	answers, err := f.aggregation.TextAnswers(ctx, s.ID, textQ)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"great team", "needs better coffee"}, answers)

	// Non-text questions are refused
	_, err = f.aggregation.TextAnswers(ctx, s.ID, sec.Questions[0].ID)
	assert.Error(t, err)
}

func TestTextAnswersRefusedForAnonymousSurveys(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(1, "Engineering")
	s, sec := mixedSurvey(t, f, true)
	submitMixed(t, f, s, sec, &team[0], respondentAnswers{rating: 4, options: []int{0}, text: "I might be identifiable"})

	var notFoundErr *survey.NotFoundError
	_, err := f.aggregation.TextAnswers(ctx, s.ID, sec.Questions[2].ID)
	require.ErrorAs(t, err, &notFoundErr)
}

func TestTextStatsExposeCountOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	team := f.seedEmployees(len(aggregationInputs), "Engineering")
	s, sec := mixedSurvey(t, f, true)
	for i := range aggregationInputs {
		submitMixed(t, f, s, sec, &team[i], aggregationInputs[i])
	}

	results, err := f.aggregation.ComputeSurveyStats(ctx, s.ID)
	require.NoError(t, err)

	textStat := results.Questions[2]
	assert.Equal(t, models.QuestionTypeText, textStat.QuestionType)
	assert.Equal(t, 2, textStat.Count)
	assert.Nil(t, textStat.Distribution)
}

func TestCachedStatsZeroFillBeforeAnyResponse(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedEmployees(2, "Engineering")
	s, sec := mixedSurvey(t, f, false)

	cached, err := f.aggregation.CachedSurveyStats(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, cached.Questions, 3)

	ratingStat := cached.Questions[0]
	assert.Equal(t, 0, ratingStat.Count)
	assert.Nil(t, ratingStat.Average)
	assert.Equal(t, map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0}, ratingStat.Distribution)

	choiceStat := cached.Questions[1]
	for _, opt := range sec.Questions[1].Config.Options {
		count, ok := choiceStat.Distribution[opt.ID.Hex()]
		assert.True(t, ok)
		assert.Equal(t, 0, count)
	}
}
