// internal/services/response_service.go
package services

import (
	"context"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/store"
	"teampulse-backend/internal/survey"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompletionSink receives the single completion fact per finalize winner.
type CompletionSink interface {
	Emit(ctx context.Context, s *models.Survey, employeeID *primitive.ObjectID, completedAt time.Time)
}

// ResponseService accepts one respondent's answers section by section,
// validates them against the question type registry and persists them.
// Sections may be submitted and corrected while the respondent is pending;
// once every required question across all sections has an answer, the set is
// finalized atomically and further submissions fail.
type ResponseService struct {
	store store.Store
	sink  CompletionSink
	log   *logrus.Logger
	now   func() time.Time
}

func NewResponseService(st store.Store, sink CompletionSink, log *logrus.Logger) *ResponseService {
	return &ResponseService{
		store: st,
		sink:  sink,
		log:   log,
		now:   time.Now,
	}
}

// SubmitInput carries one section submission. EmployeeID comes from the
// authenticated request; for anonymous surveys it is ignored entirely and
// RunToken (issued on the first section) resumes the anonymous run.
type SubmitInput struct {
	SurveyID   primitive.ObjectID
	SectionID  primitive.ObjectID
	EmployeeID *primitive.ObjectID
	RunToken   string
	Answers    []models.Answer
}

type SubmitResult struct {
	RunToken  string `json:"run_token,omitempty"`
	Completed bool   `json:"completed"`
}

func (rs *ResponseService) SubmitSection(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	s, err := rs.store.GetSurvey(ctx, in.SurveyID)
	if err != nil {
		return nil, err
	}
	if s.State != models.SurveyStateActive {
		return nil, &survey.InvalidStateError{Op: "submit responses to", State: s.State}
	}
	section := s.FindSection(in.SectionID)
	if section == nil {
		return nil, &survey.NotFoundError{Resource: "section", ID: in.SectionID.Hex()}
	}

	var recipientID *primitive.ObjectID
	runToken := ""
	if s.IsAnonymous {
		// Identity is stripped here; nothing below this point sees the
		// employee id on an anonymous survey.
		runToken, err = rs.resolveRun(ctx, s, in.RunToken)
		if err != nil {
			return nil, err
		}
	} else {
		if in.EmployeeID == nil {
			return nil, &survey.NotFoundError{Resource: "recipient"}
		}
		recipient, err := rs.store.GetRecipient(ctx, in.SurveyID, *in.EmployeeID)
		if err != nil {
			return nil, err
		}
		if recipient.Status == models.RecipientStatusCompleted {
			return nil, &survey.AlreadyCompletedError{SurveyID: in.SurveyID.Hex()}
		}
		recipientID = &recipient.EmployeeID
	}

	if verrs := validateSection(section, in.Answers); len(verrs) > 0 {
		return nil, verrs
	}

	now := rs.now()
	rows := buildResponseRows(s, section, in.Answers, recipientID, runToken, now)
	if len(rows) > 0 {
		replaced, err := rs.store.UpsertResponses(ctx, rows)
		if err != nil {
			return nil, err
		}
		if err := rs.applyIncrementalStats(ctx, s, rows, replaced); err != nil {
			return nil, err
		}
	}

	completed, err := rs.finalizeIfComplete(ctx, s, recipientID, runToken, now)
	if err != nil {
		return nil, err
	}

	rs.log.WithFields(logrus.Fields{
		"survey_id": in.SurveyID.Hex(),
		"section":   in.SectionID.Hex(),
		"answers":   len(rows),
		"completed": completed,
	}).Info("section submitted")

	return &SubmitResult{RunToken: runToken, Completed: completed}, nil
}

// resolveRun returns the anonymous run token, issuing a fresh random one on
// the first section. The token carries no identity; it only ties the
// sections of one anonymous submission together.
func (rs *ResponseService) resolveRun(ctx context.Context, s *models.Survey, token string) (string, error) {
	if token == "" {
		run := &models.SurveyRun{
			Token:     uuid.NewString(),
			SurveyID:  s.ID,
			CreatedAt: rs.now(),
		}
		if err := rs.store.CreateRun(ctx, run); err != nil {
			return "", err
		}
		return run.Token, nil
	}

	run, err := rs.store.GetRun(ctx, token)
	if err != nil {
		return "", err
	}
	if run.SurveyID != s.ID {
		return "", &survey.NotFoundError{Resource: "survey run"}
	}
	if run.Finalized {
		return "", &survey.AlreadyCompletedError{SurveyID: s.ID.Hex()}
	}
	return token, nil
}

// validateSection checks every answer of the section through the registry
// and returns all failures together, never just the first one.
func validateSection(section *models.Section, answers []models.Answer) survey.ValidationErrors {
	var verrs survey.ValidationErrors

	byQuestion := make(map[primitive.ObjectID]*models.Answer, len(answers))
	known := make(map[primitive.ObjectID]bool, len(section.Questions))
	for i := range section.Questions {
		known[section.Questions[i].ID] = true
	}
	for i := range answers {
		if !known[answers[i].QuestionID] {
			verrs = append(verrs, survey.ValidationError{
				QuestionID: answers[i].QuestionID.Hex(),
				Code:       survey.CodeUnknownQuestion,
				Message:    "answer references a question outside this section",
			})
			continue
		}
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	for i := range section.Questions {
		q := &section.Questions[i]
		def, err := survey.Describe(q.Type)
		if err != nil {
			// Unknown tags are rejected at creation time; a stored question
			// with one is corrupt data, not a respondent mistake.
			verrs = append(verrs, survey.ValidationError{
				QuestionID: q.ID.Hex(),
				Code:       survey.CodeTypeMismatch,
				Message:    err.Error(),
			})
			continue
		}
		if verr := def.Validate(q, byQuestion[q.ID], q.IsRequired); verr != nil {
			verrs = append(verrs, *verr)
		}
	}
	return verrs
}

func buildResponseRows(s *models.Survey, section *models.Section, answers []models.Answer, recipientID *primitive.ObjectID, runToken string, now time.Time) []models.Response {
	rows := make([]models.Response, 0, len(answers))
	for i := range answers {
		if answers[i].IsEmpty() {
			continue // optional question left blank
		}
		rows = append(rows, models.Response{
			SurveyID:    s.ID,
			SectionID:   section.ID,
			QuestionID:  answers[i].QuestionID,
			RecipientID: recipientID,
			RunToken:    runToken,
			Answer:      answers[i],
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return rows
}

// applyIncrementalStats keeps the running statistics in step with the
// persisted responses: replaced rows are subtracted, new rows added, so the
// incremental view always matches a batch recompute.
func (rs *ResponseService) applyIncrementalStats(ctx context.Context, s *models.Survey, rows, replaced []models.Response) error {
	deltas := make([]models.StatDelta, 0, len(rows)+len(replaced))
	for i := range replaced {
		if d := answerDelta(s, &replaced[i].Answer, -1); d != nil {
			deltas = append(deltas, *d)
		}
	}
	for i := range rows {
		if d := answerDelta(s, &rows[i].Answer, +1); d != nil {
			deltas = append(deltas, *d)
		}
	}
	if len(deltas) == 0 {
		return nil
	}
	return rs.store.ApplyStatDeltas(ctx, s.ID, deltas)
}

// finalizeIfComplete marks the respondent completed once every required
// question across all sections has a stored answer. The flip is an atomic
// check-and-set: exactly one concurrent submitter wins, the rest get
// AlreadyCompletedError.
func (rs *ResponseService) finalizeIfComplete(ctx context.Context, s *models.Survey, recipientID *primitive.ObjectID, runToken string, now time.Time) (bool, error) {
	stored, err := rs.store.ListRespondentResponses(ctx, s.ID, recipientID, runToken)
	if err != nil {
		return false, err
	}
	answered := make(map[primitive.ObjectID]bool, len(stored))
	for i := range stored {
		answered[stored[i].QuestionID] = true
	}
	for _, id := range s.RequiredQuestionIDs() {
		if !answered[id] {
			return false, nil
		}
	}

	if s.IsAnonymous {
		won, err := rs.store.FinalizeRun(ctx, runToken)
		if err != nil {
			return false, err
		}
		if !won {
			return false, &survey.AlreadyCompletedError{SurveyID: s.ID.Hex()}
		}
		if err := rs.store.IncrementCompletedTally(ctx, s.ID); err != nil {
			return false, err
		}
		if rs.sink != nil {
			rs.sink.Emit(ctx, s, nil, now)
		}
		return true, nil
	}

	won, err := rs.store.CompleteRecipient(ctx, s.ID, *recipientID, now)
	if err != nil {
		return false, err
	}
	if !won {
		return false, &survey.AlreadyCompletedError{SurveyID: s.ID.Hex()}
	}
	if rs.sink != nil {
		rs.sink.Emit(ctx, s, recipientID, now)
	}
	return true, nil
}

// Progress reports which questions the respondent has answered so a
// multi-section survey can resume where it stopped.
type ProgressView struct {
	AnsweredQuestionIDs []string `json:"answered_question_ids"`
	Completed           bool     `json:"completed"`
}

func (rs *ResponseService) Progress(ctx context.Context, surveyID primitive.ObjectID, employeeID *primitive.ObjectID, runToken string) (*ProgressView, error) {
	s, err := rs.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	view := &ProgressView{AnsweredQuestionIDs: []string{}}
	if s.IsAnonymous {
		if runToken == "" {
			return view, nil
		}
		run, err := rs.store.GetRun(ctx, runToken)
		if err != nil {
			return nil, err
		}
		if run.SurveyID != surveyID {
			return nil, &survey.NotFoundError{Resource: "survey run"}
		}
		view.Completed = run.Finalized
		stored, err := rs.store.ListRespondentResponses(ctx, surveyID, nil, runToken)
		if err != nil {
			return nil, err
		}
		for i := range stored {
			view.AnsweredQuestionIDs = append(view.AnsweredQuestionIDs, stored[i].QuestionID.Hex())
		}
		return view, nil
	}

	if employeeID == nil {
		return nil, &survey.NotFoundError{Resource: "recipient"}
	}
	recipient, err := rs.store.GetRecipient(ctx, surveyID, *employeeID)
	if err != nil {
		return nil, err
	}
	view.Completed = recipient.Status == models.RecipientStatusCompleted
	stored, err := rs.store.ListRespondentResponses(ctx, surveyID, &recipient.EmployeeID, "")
	if err != nil {
		return nil, err
	}
	for i := range stored {
		view.AnsweredQuestionIDs = append(view.AnsweredQuestionIDs, stored[i].QuestionID.Hex())
	}
	return view, nil
}

// AssignedSurveys lists the active and completed surveys the employee was
// snapshotted into at publish time. Drafts were never assigned and archived
// surveys are hidden from respondents.
func (rs *ResponseService) AssignedSurveys(ctx context.Context, employeeID primitive.ObjectID) ([]models.Survey, error) {
	ids, err := rs.store.ListAssignedSurveyIDs(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Survey, 0, len(ids))
	for _, id := range ids {
		s, err := rs.store.GetSurvey(ctx, id)
		if err != nil {
			continue
		}
		if s.State == models.SurveyStateActive || s.State == models.SurveyStateCompleted {
			out = append(out, *s)
		}
	}
	return out, nil
}
