// internal/services/aggregation_service.go
package services

import (
	"context"
	"strconv"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/store"
	"teampulse-backend/internal/survey"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SurveyResults is the admin-facing summary of one survey.
type SurveyResults struct {
	SurveyID        primitive.ObjectID `json:"survey_id"`
	State           string             `json:"state"`
	TotalRecipients int                `json:"total_recipients"`
	CompletedCount  int                `json:"completed_count"`
	CompletionRate  float64            `json:"completion_rate"`
	Questions       []models.Stat      `json:"questions"`
}

// AggregationService produces per-question statistics. Two paths exist: a
// batch recompute over the raw responses and a cheap read of the
// incrementally maintained counters. Both must yield the same numbers for
// the same data.
type AggregationService struct {
	store store.Store
	log   *logrus.Logger
}

func NewAggregationService(st store.Store, log *logrus.Logger) *AggregationService {
	return &AggregationService{store: st, log: log}
}

// ComputeSurveyStats recomputes every question's statistics from the raw
// response rows.
func (as *AggregationService) ComputeSurveyStats(ctx context.Context, surveyID primitive.ObjectID) (*SurveyResults, error) {
	s, err := as.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if s.State == models.SurveyStateDraft {
		return nil, &survey.InvalidStateError{Op: "aggregate", State: s.State}
	}

	responses, err := as.store.ListSurveyResponses(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[primitive.ObjectID][]models.Answer)
	for i := range responses {
		byQuestion[responses[i].QuestionID] = append(byQuestion[responses[i].QuestionID], responses[i].Answer)
	}

	results, err := as.resultsHeader(ctx, s)
	if err != nil {
		return nil, err
	}
	for i := range s.Sections {
		for j := range s.Sections[i].Questions {
			q := &s.Sections[i].Questions[j]
			def, err := survey.Describe(q.Type)
			if err != nil {
				return nil, err
			}
			results.Questions = append(results.Questions, def.Aggregate(q, byQuestion[q.ID]))
		}
	}
	return results, nil
}

// CachedSurveyStats serves the incrementally maintained counters without
// touching the response rows. Buckets nobody hit yet are zero-filled the
// same way the batch path fills them.
func (as *AggregationService) CachedSurveyStats(ctx context.Context, surveyID primitive.ObjectID) (*SurveyResults, error) {
	s, err := as.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if s.State == models.SurveyStateDraft {
		return nil, &survey.InvalidStateError{Op: "aggregate", State: s.State}
	}

	cached, err := as.store.ListQuestionStats(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[primitive.ObjectID]*models.QuestionStats, len(cached))
	for i := range cached {
		byQuestion[cached[i].QuestionID] = &cached[i]
	}

	results, err := as.resultsHeader(ctx, s)
	if err != nil {
		return nil, err
	}
	for i := range s.Sections {
		for j := range s.Sections[i].Questions {
			q := &s.Sections[i].Questions[j]
			def, err := survey.Describe(q.Type)
			if err != nil {
				return nil, err
			}
			// Aggregate over nothing yields the zero-filled skeleton; the
			// cached counters are overlaid on top of it.
			st := def.Aggregate(q, nil)
			if qs := byQuestion[q.ID]; qs != nil {
				st.Count = qs.Count
				for k, v := range qs.Distribution {
					st.Distribution[k] = v
				}
				if len(qs.PositionDistribution) > 0 {
					if st.PositionDistribution == nil {
						st.PositionDistribution = make(map[string]int, len(qs.PositionDistribution))
					}
					for k, v := range qs.PositionDistribution {
						st.PositionDistribution[k] = v
					}
				}
				if qs.Count > 0 && isRatingType(q.Type) {
					avg := qs.Sum / float64(qs.Count)
					st.Average = &avg
				}
			}
			results.Questions = append(results.Questions, st)
		}
	}
	return results, nil
}

func (as *AggregationService) resultsHeader(ctx context.Context, s *models.Survey) (*SurveyResults, error) {
	results := &SurveyResults{
		SurveyID:        s.ID,
		State:           s.State,
		TotalRecipients: s.TotalRecipients,
	}
	if s.IsAnonymous {
		// Per-recipient status is never tracked for anonymous surveys; the
		// finalize tally is the only completion signal.
		results.CompletedCount = s.CompletedTally
	} else {
		_, completed, err := as.store.CountRecipients(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		results.CompletedCount = completed
	}
	if results.TotalRecipients > 0 {
		results.CompletionRate = float64(results.CompletedCount) / float64(results.TotalRecipients)
	}
	return results, nil
}

// TextAnswers returns the raw free-text entries for one question. Refused
// outright on anonymous surveys: even without names, prose can identify its
// author, so anonymous text never leaves the store individually.
func (as *AggregationService) TextAnswers(ctx context.Context, surveyID, questionID primitive.ObjectID) ([]string, error) {
	s, err := as.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if s.IsAnonymous {
		return nil, &survey.NotFoundError{Resource: "text answers", ID: questionID.Hex()}
	}
	q := s.FindQuestion(questionID)
	if q == nil {
		return nil, &survey.NotFoundError{Resource: "question", ID: questionID.Hex()}
	}
	if q.Type != models.QuestionTypeText {
		return nil, &survey.UnknownQuestionTypeError{Type: q.Type}
	}

	responses, err := as.store.ListQuestionResponses(ctx, surveyID, questionID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(responses))
	for i := range responses {
		if responses[i].Answer.Text != "" {
			out = append(out, responses[i].Answer.Text)
		}
	}
	return out, nil
}

func isRatingType(tag string) bool {
	switch tag {
	case models.QuestionTypeRating, models.QuestionTypeStar, models.QuestionTypeSlider, models.QuestionTypeNPS:
		return true
	}
	return false
}

// answerDelta translates one stored answer into a counter adjustment. The
// response collector applies it with sign -1 for a replaced prior answer and
// +1 for the new one, which keeps the cached counters equal to what a batch
// recompute would produce.
func answerDelta(s *models.Survey, a *models.Answer, sign int) *models.StatDelta {
	q := s.FindQuestion(a.QuestionID)
	if q == nil || a.IsEmpty() {
		return nil
	}
	d := &models.StatDelta{QuestionID: q.ID, Count: sign}

	switch {
	case isRatingType(q.Type):
		if a.Number == nil {
			return nil
		}
		v := int(*a.Number)
		d.Sum = float64(sign * v)
		d.Distribution = map[string]int{strconv.Itoa(v): sign}
	case q.Type == models.QuestionTypeRanking:
		d.Distribution = make(map[string]int, len(a.OptionIDs))
		d.PositionDistribution = make(map[string]int, len(a.OptionIDs))
		for pos, id := range a.OptionIDs {
			d.Distribution[id.Hex()] += sign
			d.PositionDistribution[id.Hex()+"#"+strconv.Itoa(pos)] += sign
		}
	case q.Type == models.QuestionTypeMatrix:
		d.Distribution = make(map[string]int, len(a.RowSelections))
		for rowHex, optID := range a.RowSelections {
			d.Distribution[rowHex+":"+optID.Hex()] += sign
		}
	case q.Type == models.QuestionTypeText:
		// count only
	default: // choice family
		d.Distribution = make(map[string]int, len(a.OptionIDs))
		for _, id := range a.OptionIDs {
			d.Distribution[id.Hex()] += sign
		}
	}
	return d
}
