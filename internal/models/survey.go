// internal/models/survey.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Survey struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CreatorID primitive.ObjectID `bson:"creator_id" json:"creator_id" validate:"required"`

	Title       string `bson:"title" json:"title" validate:"required,min=3,max=300"`
	Description string `bson:"description" json:"description" validate:"max=2000"`

	// Delivery settings
	IsAnonymous   bool             `bson:"is_anonymous" json:"is_anonymous"`
	IsMandatory   bool             `bson:"is_mandatory" json:"is_mandatory"`
	Audience      AudienceSelector `bson:"audience" json:"audience"`
	PointsAwarded int              `bson:"points_awarded" json:"points_awarded" validate:"min=0"`
	ReminderDays  int              `bson:"reminder_days" json:"reminder_days" validate:"min=0"`

	OpenDate  time.Time `bson:"open_date" json:"open_date"`
	CloseDate time.Time `bson:"close_date" json:"close_date"`

	// Structure: ordered sections, each with ordered questions.
	// Frozen permanently once the survey leaves draft.
	Sections []Section `bson:"sections" json:"sections"`

	// Audience snapshot taken at publish time.
	TotalRecipients int `bson:"total_recipients" json:"total_recipients"`

	// Completion counter for anonymous surveys; individual Recipient rows
	// are never flipped when is_anonymous is set.
	CompletedTally int `bson:"completed_tally" json:"completed_tally"`

	State       string     `bson:"state" json:"state"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	PublishedAt *time.Time `bson:"published_at,omitempty" json:"published_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	ArchivedAt  *time.Time `bson:"archived_at,omitempty" json:"archived_at,omitempty"`
}

type AudienceSelector struct {
	Kind        string               `bson:"kind" json:"kind" validate:"required,oneof=all department explicit"`
	Department  string               `bson:"department,omitempty" json:"department,omitempty"`
	EmployeeIDs []primitive.ObjectID `bson:"employee_ids,omitempty" json:"employee_ids,omitempty"`
}

type Section struct {
	ID          primitive.ObjectID `bson:"id" json:"id"`
	Title       string             `bson:"title" json:"title" validate:"required,min=1,max=300"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Order       int                `bson:"order" json:"order"`
	Questions   []Question         `bson:"questions" json:"questions"`
}

type Question struct {
	ID         primitive.ObjectID `bson:"id" json:"id"`
	Text       string             `bson:"text" json:"text" validate:"required,min=1,max=500"`
	Type       string             `bson:"type" json:"type" validate:"required"`
	IsRequired bool               `bson:"is_required" json:"is_required"`
	Order      int                `bson:"order" json:"order"`
	Config     QuestionConfig     `bson:"config" json:"config"`
}

// QuestionConfig holds the type-specific settings. Which fields apply is
// decided by the question type registry.
type QuestionConfig struct {
	// Rating family
	MinValue int               `bson:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue int               `bson:"max_value,omitempty" json:"max_value,omitempty"`
	Labels   map[string]string `bson:"labels,omitempty" json:"labels,omitempty"` // ordinal labels keyed by value

	// Choice family
	Options []Option `bson:"options,omitempty" json:"options,omitempty"`
	Rows    []Option `bson:"rows,omitempty" json:"rows,omitempty"` // matrix rows

	// Free text
	MaxLength int `bson:"max_length,omitempty" json:"max_length,omitempty"`
}

type Option struct {
	ID    primitive.ObjectID `bson:"id" json:"id"`
	Text  string             `bson:"text" json:"text" validate:"required,min=1,max=200"`
	Image string             `bson:"image,omitempty" json:"image,omitempty"`
}

// Recipient joins a survey to one respondent. Created when the survey is
// published against its audience selector; immutable afterward except for
// the pending -> completed transition.
type Recipient struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	SurveyID    primitive.ObjectID `bson:"survey_id" json:"survey_id"`
	EmployeeID  primitive.ObjectID `bson:"employee_id" json:"employee_id"`
	Status      string             `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	CompletedAt *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// SurveyRun groups the sections of one anonymous submission. The token is
// random and carries no identity; it only lets a respondent resume a
// partially answered anonymous survey.
type SurveyRun struct {
	Token     string             `bson:"_id" json:"token"`
	SurveyID  primitive.ObjectID `bson:"survey_id" json:"survey_id"`
	Finalized bool               `bson:"finalized" json:"finalized"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Response is one answered question. RecipientID is populated only for
// non-anonymous surveys; anonymous rows carry the run token instead.
type Response struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	SurveyID    primitive.ObjectID  `bson:"survey_id" json:"survey_id"`
	SectionID   primitive.ObjectID  `bson:"section_id" json:"section_id"`
	QuestionID  primitive.ObjectID  `bson:"question_id" json:"question_id"`
	RecipientID *primitive.ObjectID `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	RunToken    string              `bson:"run_token,omitempty" json:"run_token,omitempty"`
	Answer      Answer              `bson:"answer" json:"answer"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}

// Answer carries the typed value of one question. Exactly one value group is
// set depending on the question type.
type Answer struct {
	QuestionID primitive.ObjectID `bson:"question_id" json:"question_id"`

	// Choice family; order is meaningful for ranking questions.
	OptionIDs []primitive.ObjectID `bson:"option_ids,omitempty" json:"option_ids,omitempty"`

	// Matrix: row id (hex) -> selected column option id.
	RowSelections map[string]primitive.ObjectID `bson:"row_selections,omitempty" json:"row_selections,omitempty"`

	// Rating family
	Number *float64 `bson:"number,omitempty" json:"number,omitempty"`

	// Free text
	Text string `bson:"text,omitempty" json:"text,omitempty"`
}

// IsEmpty reports whether no value group is populated at all.
func (a *Answer) IsEmpty() bool {
	return len(a.OptionIDs) == 0 && len(a.RowSelections) == 0 && a.Number == nil && a.Text == ""
}

// Stat is the aggregated view of one question. Derived, never the source of
// truth; always recomputable from responses.
type Stat struct {
	QuestionID   primitive.ObjectID `bson:"question_id" json:"question_id"`
	QuestionType string             `bson:"question_type" json:"question_type"`
	Count        int                `bson:"count" json:"count"`
	Average      *float64           `bson:"average,omitempty" json:"average,omitempty"`
	Distribution map[string]int     `bson:"distribution,omitempty" json:"distribution,omitempty"`

	// Ranking only: "<optionID>#<position>" -> count.
	PositionDistribution map[string]int `bson:"position_distribution,omitempty" json:"position_distribution,omitempty"`
}

// QuestionStats is the persisted incremental counterpart of Stat.
type QuestionStats struct {
	SurveyID             primitive.ObjectID `bson:"survey_id" json:"survey_id"`
	QuestionID           primitive.ObjectID `bson:"question_id" json:"question_id"`
	Count                int                `bson:"count" json:"count"`
	Sum                  float64            `bson:"sum" json:"sum"`
	Distribution         map[string]int     `bson:"distribution" json:"distribution"`
	PositionDistribution map[string]int     `bson:"position_distribution,omitempty" json:"position_distribution,omitempty"`
}

// StatDelta is one incremental adjustment, negative when an answer set is
// replaced before finalization.
type StatDelta struct {
	QuestionID           primitive.ObjectID
	Count                int
	Sum                  float64
	Distribution         map[string]int
	PositionDistribution map[string]int
}

// Survey lifecycle. Linear, no back-transitions.
const (
	SurveyStateDraft     = "draft"
	SurveyStateActive    = "active"
	SurveyStateCompleted = "completed"
	SurveyStateArchived  = "archived"
)

// Recipient statuses
const (
	RecipientStatusPending   = "pending"
	RecipientStatusCompleted = "completed"
)

// Audience selector kinds
const (
	AudienceAll        = "all"
	AudienceDepartment = "department"
	AudienceExplicit   = "explicit"
)

// Question types understood by the registry
const (
	QuestionTypeRating         = "rating"
	QuestionTypeStar           = "star"
	QuestionTypeSlider         = "slider"
	QuestionTypeNPS            = "nps"
	QuestionTypeSingleChoice   = "single_choice"
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeDropdown       = "dropdown"
	QuestionTypeRanking        = "ranking"
	QuestionTypeMatrix         = "matrix"
	QuestionTypeImageChoice    = "image_choice"
	QuestionTypeText           = "text"
)

func (s *Survey) IsPastDue(now time.Time) bool {
	return !s.CloseDate.IsZero() && now.After(s.CloseDate)
}

// QuestionCount counts questions across all sections.
func (s *Survey) QuestionCount() int {
	n := 0
	for i := range s.Sections {
		n += len(s.Sections[i].Questions)
	}
	return n
}

func (s *Survey) FindSection(id primitive.ObjectID) *Section {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i]
		}
	}
	return nil
}

func (s *Survey) FindQuestion(id primitive.ObjectID) *Question {
	for i := range s.Sections {
		for j := range s.Sections[i].Questions {
			if s.Sections[i].Questions[j].ID == id {
				return &s.Sections[i].Questions[j]
			}
		}
	}
	return nil
}

// RequiredQuestionIDs lists every required question across all sections.
func (s *Survey) RequiredQuestionIDs() []primitive.ObjectID {
	var ids []primitive.ObjectID
	for i := range s.Sections {
		for j := range s.Sections[i].Questions {
			if s.Sections[i].Questions[j].IsRequired {
				ids = append(ids, s.Sections[i].Questions[j].ID)
			}
		}
	}
	return ids
}

func (q *Question) FindOption(id primitive.ObjectID) *Option {
	for i := range q.Config.Options {
		if q.Config.Options[i].ID == id {
			return &q.Config.Options[i]
		}
	}
	return nil
}

func (q *Question) FindRow(id primitive.ObjectID) *Option {
	for i := range q.Config.Rows {
		if q.Config.Rows[i].ID == id {
			return &q.Config.Rows[i]
		}
	}
	return nil
}
