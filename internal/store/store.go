// internal/store/store.go
package store

import (
	"context"
	"time"

	"teampulse-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SurveyFilter narrows survey listings.
type SurveyFilter struct {
	States    []string
	CreatorID *primitive.ObjectID
	DueBefore *time.Time // active surveys whose close date has elapsed
	Limit     int
	Skip      int
}

// Store is the persistence contract of the survey engine. The Mongo
// implementation backs production; the in-memory one backs tests and local
// development. Methods that guard invariants (ReplaceDraft, PublishSurvey,
// TransitionState, CompleteRecipient, FinalizeRun) must be atomic
// check-and-set operations, not read-then-write.
type Store interface {
	// Surveys
	InsertSurvey(ctx context.Context, s *models.Survey) error
	GetSurvey(ctx context.Context, id primitive.ObjectID) (*models.Survey, error)
	ListSurveys(ctx context.Context, f SurveyFilter) ([]models.Survey, error)

	// ReplaceDraft swaps the whole survey document while it is still in
	// draft. A survey that already left draft fails with
	// ImmutableStructureError; readers never observe a partial edit.
	ReplaceDraft(ctx context.Context, s *models.Survey) error

	// PublishSurvey atomically flips draft -> active, records the audience
	// snapshot size and inserts the recipient rows.
	PublishSurvey(ctx context.Context, id primitive.ObjectID, recipients []models.Recipient, now time.Time) error

	// TransitionState flips from -> to and reports whether this call won the
	// flip (false when the survey was not in the from state).
	TransitionState(ctx context.Context, id primitive.ObjectID, from, to string, now time.Time) (bool, error)

	// Recipients
	GetRecipient(ctx context.Context, surveyID, employeeID primitive.ObjectID) (*models.Recipient, error)
	ListRecipients(ctx context.Context, surveyID primitive.ObjectID) ([]models.Recipient, error)
	ListAssignedSurveyIDs(ctx context.Context, employeeID primitive.ObjectID) ([]primitive.ObjectID, error)
	CountRecipients(ctx context.Context, surveyID primitive.ObjectID) (total int, completed int, err error)

	// CompleteRecipient is the finalize guard for non-anonymous surveys:
	// pending -> completed succeeds for exactly one caller.
	CompleteRecipient(ctx context.Context, surveyID, employeeID primitive.ObjectID, now time.Time) (bool, error)

	// Anonymous runs
	CreateRun(ctx context.Context, run *models.SurveyRun) error
	GetRun(ctx context.Context, token string) (*models.SurveyRun, error)

	// FinalizeRun is the finalize guard for anonymous surveys; exactly one
	// caller flips a run to finalized.
	FinalizeRun(ctx context.Context, token string) (bool, error)
	IncrementCompletedTally(ctx context.Context, surveyID primitive.ObjectID) error

	// Responses. UpsertResponses replaces any prior row for the same
	// (survey, question, respondent) and returns the replaced rows so
	// incremental statistics can be corrected. The write fails with
	// AlreadyCompletedError when the respondent finalized after the caller's
	// status check, so a finalized answer set is never overwritten.
	UpsertResponses(ctx context.Context, rs []models.Response) ([]models.Response, error)
	ListSurveyResponses(ctx context.Context, surveyID primitive.ObjectID) ([]models.Response, error)
	ListQuestionResponses(ctx context.Context, surveyID, questionID primitive.ObjectID) ([]models.Response, error)
	ListRespondentResponses(ctx context.Context, surveyID primitive.ObjectID, recipientID *primitive.ObjectID, runToken string) ([]models.Response, error)

	// Incremental statistics
	ApplyStatDeltas(ctx context.Context, surveyID primitive.ObjectID, deltas []models.StatDelta) error
	ListQuestionStats(ctx context.Context, surveyID primitive.ObjectID) ([]models.QuestionStats, error)

	// Directory (read-only; owned by the identity provider)
	GetEmployee(ctx context.Context, id primitive.ObjectID) (*models.Employee, error)
	ListEmployees(ctx context.Context, sel models.AudienceSelector) ([]models.Employee, error)
}
