// internal/survey/registry.go
package survey

import (
	"fmt"
	"math"
	"strconv"

	"teampulse-backend/internal/models"

	"github.com/montanaflynn/stats"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TypeDef is one entry of the question type registry. Adding a question type
// means adding an entry here; the collector and the aggregation engine never
// switch on type tags themselves.
type TypeDef struct {
	Tag string

	// ValidateConfig checks (and defaults) the type-specific configuration
	// at question creation time.
	ValidateConfig func(q *models.Question) error

	// Validate checks one respondent answer. A nil return means the answer
	// is acceptable; a missing answer on an optional question is acceptable.
	Validate func(q *models.Question, a *models.Answer, required bool) *ValidationError

	// Aggregate summarizes every persisted answer for the question.
	Aggregate func(q *models.Question, answers []models.Answer) models.Stat
}

var registry = map[string]*TypeDef{
	models.QuestionTypeRating:         ratingType(models.QuestionTypeRating, 1, 5, false),
	models.QuestionTypeStar:           ratingType(models.QuestionTypeStar, 1, 5, false),
	models.QuestionTypeSlider:         ratingType(models.QuestionTypeSlider, 0, 10, false),
	models.QuestionTypeNPS:            ratingType(models.QuestionTypeNPS, 0, 10, true),
	models.QuestionTypeSingleChoice:   choiceType(models.QuestionTypeSingleChoice, false),
	models.QuestionTypeDropdown:       choiceType(models.QuestionTypeDropdown, false),
	models.QuestionTypeImageChoice:    choiceType(models.QuestionTypeImageChoice, false),
	models.QuestionTypeMultipleChoice: choiceType(models.QuestionTypeMultipleChoice, true),
	models.QuestionTypeRanking:        rankingType(),
	models.QuestionTypeMatrix:         matrixType(),
	models.QuestionTypeText:           textType(),
}

// Describe resolves a type tag. Unknown tags are a configuration error and
// must be rejected before a question is ever stored.
func Describe(tag string) (*TypeDef, error) {
	def, ok := registry[tag]
	if !ok {
		return nil, &UnknownQuestionTypeError{Type: tag}
	}
	return def, nil
}

// KnownType reports whether the tag is registered.
func KnownType(tag string) bool {
	_, ok := registry[tag]
	return ok
}

const (
	maxChoiceOptions = 20
	maxRatingSpan    = 100
	maxTextLength    = 5000
	defaultTextCap   = 1000
)

func missing(a *models.Answer) bool {
	return a == nil || a.IsEmpty()
}

func requiredErr(q *models.Question) *ValidationError {
	return &ValidationError{
		QuestionID: q.ID.Hex(),
		Code:       CodeRequired,
		Message:    fmt.Sprintf("question %q requires an answer", q.Text),
	}
}

// ---- rating family (numeric scale, star, slider, NPS) ----

func ratingType(tag string, defMin, defMax int, fixedRange bool) *TypeDef {
	return &TypeDef{
		Tag: tag,
		ValidateConfig: func(q *models.Question) error {
			if fixedRange || (q.Config.MinValue == 0 && q.Config.MaxValue == 0) {
				q.Config.MinValue = defMin
				q.Config.MaxValue = defMax
			}
			if q.Config.MinValue >= q.Config.MaxValue {
				return fmt.Errorf("min_value must be less than max_value")
			}
			if q.Config.MaxValue-q.Config.MinValue > maxRatingSpan {
				return fmt.Errorf("rating range cannot exceed %d values", maxRatingSpan)
			}
			return nil
		},
		Validate: func(q *models.Question, a *models.Answer, required bool) *ValidationError {
			if missing(a) {
				if required {
					return requiredErr(q)
				}
				return nil
			}
			if a.Number == nil {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeTypeMismatch, Message: "expected a numeric answer"}
			}
			v := *a.Number
			if v != math.Trunc(v) {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeTypeMismatch, Message: "expected a whole number"}
			}
			if int(v) < q.Config.MinValue || int(v) > q.Config.MaxValue {
				return &ValidationError{
					QuestionID: q.ID.Hex(),
					Code:       CodeOutOfRange,
					Message:    fmt.Sprintf("value must be between %d and %d", q.Config.MinValue, q.Config.MaxValue),
				}
			}
			return nil
		},
		Aggregate: func(q *models.Question, answers []models.Answer) models.Stat {
			st := models.Stat{
				QuestionID:   q.ID,
				QuestionType: tag,
				Distribution: ratingBuckets(q),
			}
			values := make([]float64, 0, len(answers))
			for i := range answers {
				if answers[i].Number == nil {
					continue
				}
				v := int(*answers[i].Number)
				values = append(values, float64(v))
				st.Distribution[strconv.Itoa(v)]++
			}
			st.Count = len(values)
			if st.Count > 0 {
				mean, err := stats.Mean(values)
				if err == nil {
					st.Average = &mean
				}
			}
			return st
		},
	}
}

// ratingBuckets zero-fills the full configured range so charts always render
// every value, even those nobody picked.
func ratingBuckets(q *models.Question) map[string]int {
	dist := make(map[string]int, q.Config.MaxValue-q.Config.MinValue+1)
	for v := q.Config.MinValue; v <= q.Config.MaxValue; v++ {
		dist[strconv.Itoa(v)] = 0
	}
	return dist
}

// ---- choice family (single choice, multiple choice, dropdown, image choice) ----

func choiceType(tag string, multi bool) *TypeDef {
	return &TypeDef{
		Tag: tag,
		ValidateConfig: func(q *models.Question) error {
			if len(q.Config.Options) < 2 {
				return fmt.Errorf("choice questions must have at least 2 options")
			}
			if len(q.Config.Options) > maxChoiceOptions {
				return fmt.Errorf("too many options (max %d)", maxChoiceOptions)
			}
			if tag == models.QuestionTypeImageChoice {
				for i := range q.Config.Options {
					if q.Config.Options[i].Image == "" {
						return fmt.Errorf("image choice options must each carry an image")
					}
				}
			}
			return nil
		},
		Validate: func(q *models.Question, a *models.Answer, required bool) *ValidationError {
			if missing(a) {
				if required {
					return requiredErr(q)
				}
				return nil
			}
			if len(a.OptionIDs) == 0 {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeTypeMismatch, Message: "expected option selections"}
			}
			if !multi && len(a.OptionIDs) > 1 {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeTooManyOptions, Message: "only one option may be selected"}
			}
			return checkOptionSet(q, a.OptionIDs)
		},
		Aggregate: func(q *models.Question, answers []models.Answer) models.Stat {
			st := models.Stat{
				QuestionID:   q.ID,
				QuestionType: tag,
				Distribution: optionBuckets(q),
			}
			for i := range answers {
				if len(answers[i].OptionIDs) == 0 {
					continue
				}
				st.Count++
				// A multi-select answer contributes to every selected
				// option, so counts may sum past the respondent count.
				for _, id := range answers[i].OptionIDs {
					st.Distribution[id.Hex()]++
				}
			}
			return st
		},
	}
}

func optionBuckets(q *models.Question) map[string]int {
	dist := make(map[string]int, len(q.Config.Options))
	for i := range q.Config.Options {
		dist[q.Config.Options[i].ID.Hex()] = 0
	}
	return dist
}

func checkOptionSet(q *models.Question, ids []primitive.ObjectID) *ValidationError {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if q.FindOption(id) == nil {
			return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeUnknownOption, Message: "selected option does not exist"}
		}
		if seen[id] {
			return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeDuplicateOption, Message: "option selected more than once"}
		}
		seen[id] = true
	}
	return nil
}

// ---- ranking ----

func rankingType() *TypeDef {
	return &TypeDef{
		Tag: models.QuestionTypeRanking,
		ValidateConfig: func(q *models.Question) error {
			if len(q.Config.Options) < 2 {
				return fmt.Errorf("ranking questions must have at least 2 options")
			}
			if len(q.Config.Options) > maxChoiceOptions {
				return fmt.Errorf("too many options (max %d)", maxChoiceOptions)
			}
			return nil
		},
		Validate: func(q *models.Question, a *models.Answer, required bool) *ValidationError {
			if missing(a) {
				if required {
					return requiredErr(q)
				}
				return nil
			}
			if len(a.OptionIDs) == 0 {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeTypeMismatch, Message: "expected a ranked option list"}
			}
			return checkOptionSet(q, a.OptionIDs)
		},
		Aggregate: func(q *models.Question, answers []models.Answer) models.Stat {
			st := models.Stat{
				QuestionID:           q.ID,
				QuestionType:         models.QuestionTypeRanking,
				Distribution:         optionBuckets(q),
				PositionDistribution: map[string]int{},
			}
			for i := range answers {
				if len(answers[i].OptionIDs) == 0 {
					continue
				}
				st.Count++
				for pos, id := range answers[i].OptionIDs {
					st.Distribution[id.Hex()]++
					st.PositionDistribution[rankKey(id, pos)]++
				}
			}
			return st
		},
	}
}

func rankKey(id primitive.ObjectID, pos int) string {
	return id.Hex() + "#" + strconv.Itoa(pos)
}

// ---- matrix ----

func matrixType() *TypeDef {
	return &TypeDef{
		Tag: models.QuestionTypeMatrix,
		ValidateConfig: func(q *models.Question) error {
			if len(q.Config.Rows) < 1 {
				return fmt.Errorf("matrix questions must have at least 1 row")
			}
			if len(q.Config.Options) < 2 {
				return fmt.Errorf("matrix questions must have at least 2 columns")
			}
			if len(q.Config.Rows) > maxChoiceOptions || len(q.Config.Options) > maxChoiceOptions {
				return fmt.Errorf("too many rows or columns (max %d)", maxChoiceOptions)
			}
			return nil
		},
		Validate: func(q *models.Question, a *models.Answer, required bool) *ValidationError {
			if missing(a) {
				if required {
					return requiredErr(q)
				}
				return nil
			}
			if len(a.RowSelections) == 0 {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeTypeMismatch, Message: "expected per-row selections"}
			}
			for rowHex, optID := range a.RowSelections {
				rowID, err := primitive.ObjectIDFromHex(rowHex)
				if err != nil || q.FindRow(rowID) == nil {
					return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeUnknownRow, Message: "answered row does not exist"}
				}
				if q.FindOption(optID) == nil {
					return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeUnknownOption, Message: "selected column does not exist"}
				}
			}
			if required && len(a.RowSelections) < len(q.Config.Rows) {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeRequired, Message: "all rows must be answered"}
			}
			return nil
		},
		Aggregate: func(q *models.Question, answers []models.Answer) models.Stat {
			st := models.Stat{
				QuestionID:   q.ID,
				QuestionType: models.QuestionTypeMatrix,
				Distribution: matrixBuckets(q),
			}
			for i := range answers {
				if len(answers[i].RowSelections) == 0 {
					continue
				}
				st.Count++
				for rowHex, optID := range answers[i].RowSelections {
					st.Distribution[rowHex+":"+optID.Hex()]++
				}
			}
			return st
		},
	}
}

func matrixBuckets(q *models.Question) map[string]int {
	dist := make(map[string]int, len(q.Config.Rows)*len(q.Config.Options))
	for i := range q.Config.Rows {
		for j := range q.Config.Options {
			dist[q.Config.Rows[i].ID.Hex()+":"+q.Config.Options[j].ID.Hex()] = 0
		}
	}
	return dist
}

// ---- free text ----

func textType() *TypeDef {
	return &TypeDef{
		Tag: models.QuestionTypeText,
		ValidateConfig: func(q *models.Question) error {
			if q.Config.MaxLength == 0 {
				q.Config.MaxLength = defaultTextCap
			}
			if q.Config.MaxLength > maxTextLength {
				return fmt.Errorf("max text length cannot exceed %d characters", maxTextLength)
			}
			return nil
		},
		Validate: func(q *models.Question, a *models.Answer, required bool) *ValidationError {
			if missing(a) {
				if required {
					return requiredErr(q)
				}
				return nil
			}
			if a.Text == "" {
				return &ValidationError{QuestionID: q.ID.Hex(), Code: CodeTypeMismatch, Message: "expected a text answer"}
			}
			if len(a.Text) > q.Config.MaxLength {
				return &ValidationError{
					QuestionID: q.ID.Hex(),
					Code:       CodeTooLong,
					Message:    fmt.Sprintf("answer exceeds max length of %d", q.Config.MaxLength),
				}
			}
			return nil
		},
		// Raw text is never folded into shared statistics; only the count is
		// exposed so anonymous responses cannot leak identity through prose.
		Aggregate: func(q *models.Question, answers []models.Answer) models.Stat {
			st := models.Stat{QuestionID: q.ID, QuestionType: models.QuestionTypeText}
			for i := range answers {
				if answers[i].Text != "" {
					st.Count++
				}
			}
			return st
		},
	}
}
