// internal/services/publication_service.go
package services

import (
	"context"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/store"
	"teampulse-backend/internal/survey"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AudienceResolver turns an audience selector into the concrete identity set
// at publish time. Production uses the company directory; tests fake it.
type AudienceResolver interface {
	Resolve(ctx context.Context, sel models.AudienceSelector) ([]models.Employee, error)
}

// DirectoryResolver resolves audiences against the employees directory.
type DirectoryResolver struct {
	store store.Store
}

func NewDirectoryResolver(st store.Store) *DirectoryResolver {
	return &DirectoryResolver{store: st}
}

func (dr *DirectoryResolver) Resolve(ctx context.Context, sel models.AudienceSelector) ([]models.Employee, error) {
	return dr.store.ListEmployees(ctx, sel)
}

// PublicationService drives the linear survey lifecycle:
// draft -> active -> completed -> archived. No back-transitions, and no
// transition ever touches section or question content.
type PublicationService struct {
	store    store.Store
	resolver AudienceResolver
	log      *logrus.Logger
}

func NewPublicationService(st store.Store, resolver AudienceResolver, log *logrus.Logger) *PublicationService {
	return &PublicationService{store: st, resolver: resolver, log: log}
}

// Publish flips draft -> active. The audience selector is resolved once and
// snapshotted as Recipient rows; later directory changes never add or remove
// recipients. The state flip is atomic in the store, so an edit racing this
// call either lands before the flip or fails with ImmutableStructureError.
func (ps *PublicationService) Publish(ctx context.Context, surveyID primitive.ObjectID, now time.Time) (*models.Survey, error) {
	s, err := ps.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if s.State != models.SurveyStateDraft {
		return nil, &survey.InvalidStateError{Op: "publish", State: s.State}
	}
	if s.QuestionCount() == 0 {
		return nil, &survey.EmptySurveyError{SurveyID: surveyID.Hex()}
	}

	audience, err := ps.resolver.Resolve(ctx, s.Audience)
	if err != nil {
		return nil, err
	}
	recipients := make([]models.Recipient, 0, len(audience))
	for i := range audience {
		recipients = append(recipients, models.Recipient{
			SurveyID:   surveyID,
			EmployeeID: audience[i].ID,
			Status:     models.RecipientStatusPending,
			CreatedAt:  now,
		})
	}

	if err := ps.store.PublishSurvey(ctx, surveyID, recipients, now); err != nil {
		return nil, err
	}

	ps.log.WithFields(logrus.Fields{
		"survey_id":  surveyID.Hex(),
		"recipients": len(recipients),
		"anonymous":  s.IsAnonymous,
	}).Info("survey published")

	return ps.store.GetSurvey(ctx, surveyID)
}

// Complete flips active -> completed. Idempotent: completing an already
// completed survey is a no-op, not an error.
func (ps *PublicationService) Complete(ctx context.Context, surveyID primitive.ObjectID, now time.Time) error {
	flipped, err := ps.store.TransitionState(ctx, surveyID, models.SurveyStateActive, models.SurveyStateCompleted, now)
	if err != nil {
		return err
	}
	if flipped {
		ps.log.WithField("survey_id", surveyID.Hex()).Info("survey completed")
		return nil
	}

	s, err := ps.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return err
	}
	if s.State == models.SurveyStateCompleted {
		return nil
	}
	return &survey.InvalidStateError{Op: "complete", State: s.State}
}

// Archive flips completed -> archived: the survey disappears from active
// respondent views but responses and statistics stay readable.
func (ps *PublicationService) Archive(ctx context.Context, surveyID primitive.ObjectID, now time.Time) error {
	flipped, err := ps.store.TransitionState(ctx, surveyID, models.SurveyStateCompleted, models.SurveyStateArchived, now)
	if err != nil {
		return err
	}
	if !flipped {
		s, err := ps.store.GetSurvey(ctx, surveyID)
		if err != nil {
			return err
		}
		return &survey.InvalidStateError{Op: "archive", State: s.State}
	}
	ps.log.WithField("survey_id", surveyID.Hex()).Info("survey archived")
	return nil
}

// DueSurveys lists active surveys whose close date has elapsed. The engine
// holds no timers; an external scheduler polls this and calls Sweep.
func (ps *PublicationService) DueSurveys(ctx context.Context, now time.Time) ([]models.Survey, error) {
	return ps.store.ListSurveys(ctx, store.SurveyFilter{DueBefore: &now})
}

// Sweep completes every past-due survey and reports how many were flipped.
func (ps *PublicationService) Sweep(ctx context.Context, now time.Time) (int, error) {
	due, err := ps.DueSurveys(ctx, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range due {
		if !due[i].IsPastDue(now) {
			continue
		}
		if err := ps.Complete(ctx, due[i].ID, now); err != nil {
			ps.log.WithError(err).WithField("survey_id", due[i].ID.Hex()).Warn("sweep failed for survey")
			continue
		}
		swept++
	}
	if swept > 0 {
		ps.log.WithField("count", swept).Info("past-due surveys completed")
	}
	return swept, nil
}

// ReminderDue computes when the external notification sender should remind
// pending recipients: reminder_days after publication. Zero time when the
// survey has no reminder configured or is not published.
func (ps *PublicationService) ReminderDue(s *models.Survey) time.Time {
	if s.ReminderDays <= 0 || s.PublishedAt == nil {
		return time.Time{}
	}
	return s.PublishedAt.AddDate(0, 0, s.ReminderDays)
}
