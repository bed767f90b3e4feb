// internal/survey/errors.go
package survey

import (
	"fmt"
	"strings"
)

// NotFoundError reports a missing survey, section, question, recipient or
// response resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidStateError reports an operation that is not legal for the survey's
// current lifecycle state.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a survey in state %q", e.Op, e.State)
}

// ImmutableStructureError reports a section/question edit attempted after
// the survey left draft. The structure is frozen permanently at publish.
type ImmutableStructureError struct {
	State string
}

func (e *ImmutableStructureError) Error() string {
	return fmt.Sprintf("survey structure is frozen in state %q", e.State)
}

// EmptySurveyError reports a publish attempt with no questions.
type EmptySurveyError struct {
	SurveyID string
}

func (e *EmptySurveyError) Error() string {
	return fmt.Sprintf("survey %s has no questions to publish", e.SurveyID)
}

// UnknownQuestionTypeError reports a question created with a type tag the
// registry does not know. Raised at creation time, never at response time.
type UnknownQuestionTypeError struct {
	Type string
}

func (e *UnknownQuestionTypeError) Error() string {
	return fmt.Sprintf("unknown question type %q", e.Type)
}

// AlreadyCompletedError reports a duplicate submission after the respondent's
// answer set was finalized.
type AlreadyCompletedError struct {
	SurveyID string
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("survey %s was already completed by this respondent", e.SurveyID)
}

// ValidationError is one per-answer failure. Collected and returned together
// so the caller can present every correction at once.
type ValidationError struct {
	QuestionID string `json:"question_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %s: %s", e.QuestionID, e.Message)
}

// Validation error codes
const (
	CodeRequired        = "required"
	CodeTypeMismatch    = "type_mismatch"
	CodeOutOfRange      = "out_of_range"
	CodeUnknownOption   = "unknown_option"
	CodeUnknownRow      = "unknown_row"
	CodeTooManyOptions  = "too_many_options"
	CodeDuplicateOption = "duplicate_option"
	CodeTooLong         = "too_long"
	CodeUnknownQuestion = "unknown_question"
)

// ValidationErrors is the batched error collection; never fail-fast.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(ve))
	for i := range ve {
		parts = append(parts, ve[i].Error())
	}
	return strings.Join(parts, "; ")
}
