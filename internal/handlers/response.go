// internal/handlers/response.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/services"
	"teampulse-backend/internal/store"
	"teampulse-backend/pkg/validator"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ResponseHandler exposes the respondent surface: assigned surveys, section
// submission and progress.
type ResponseHandler struct {
	responses *services.ResponseService
	store     store.Store
}

func NewResponseHandler(responses *services.ResponseService, st store.Store) *ResponseHandler {
	return &ResponseHandler{responses: responses, store: st}
}

type SubmitSectionRequest struct {
	RunToken string        `json:"run_token,omitempty"`
	Answers  []AnswerInput `json:"answers" validate:"required,dive"`
}

type AnswerInput struct {
	QuestionID    string            `json:"question_id" validate:"required"`
	OptionIDs     []string          `json:"option_ids,omitempty"`
	RowSelections map[string]string `json:"row_selections,omitempty"`
	Number        *float64          `json:"number,omitempty"`
	Text          string            `json:"text,omitempty"`
}

func (in *AnswerInput) toAnswer() (models.Answer, error) {
	a := models.Answer{Text: in.Text, Number: in.Number}
	qid, err := primitive.ObjectIDFromHex(in.QuestionID)
	if err != nil {
		return a, err
	}
	a.QuestionID = qid
	for _, hex := range in.OptionIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return a, err
		}
		a.OptionIDs = append(a.OptionIDs, id)
	}
	if len(in.RowSelections) > 0 {
		a.RowSelections = make(map[string]primitive.ObjectID, len(in.RowSelections))
		for row, hex := range in.RowSelections {
			id, err := primitive.ObjectIDFromHex(hex)
			if err != nil {
				return a, err
			}
			a.RowSelections[row] = id
		}
	}
	return a, nil
}

// ListAssigned returns the surveys the caller was snapshotted into.
func (h *ResponseHandler) ListAssigned(c *gin.Context) {
	employeeID, _ := c.Get("employee_id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	surveys, err := h.responses.AssignedSurveys(ctx, employeeID.(primitive.ObjectID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing surveys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"surveys": surveys})
}

// GetSurvey returns the survey structure for answering. Counters and other
// admin fields are included as stored; drafts are never visible here.
func (h *ResponseHandler) GetSurvey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := h.store.GetSurvey(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if s.State == models.SurveyStateDraft {
		c.JSON(http.StatusNotFound, gin.H{"error": "Survey not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// SubmitSection accepts the answers for one section.
func (h *ResponseHandler) SubmitSection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sectionID, ok := pathID(c, "sectionId")
	if !ok {
		return
	}
	var req SubmitSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if err := validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission", "details": err.Error()})
		return
	}

	answers := make([]models.Answer, 0, len(req.Answers))
	for i := range req.Answers {
		a, err := req.Answers[i].toAnswer()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id in answer", "details": err.Error()})
			return
		}
		answers = append(answers, a)
	}

	employeeID, _ := c.Get("employee_id")
	eid := employeeID.(primitive.ObjectID)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := h.responses.SubmitSection(ctx, services.SubmitInput{
		SurveyID:   id,
		SectionID:  sectionID,
		EmployeeID: &eid,
		RunToken:   req.RunToken,
		Answers:    answers,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Progress reports which questions the caller has already answered.
func (h *ResponseHandler) Progress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	runToken := c.Query("run_token")

	employeeID, _ := c.Get("employee_id")
	eid := employeeID.(primitive.ObjectID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	view, err := h.responses.Progress(ctx, id, &eid, runToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
