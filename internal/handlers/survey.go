// internal/handlers/survey.go
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

// SurveyHandler exposes the admin surface: draft authoring and the survey
// lifecycle (publish, complete, archive).
type SurveyHandler struct {
	drafts      *services.DraftService
	publication *services.PublicationService
	store       store.Store
}

func NewSurveyHandler(drafts *services.DraftService, publication *services.PublicationService, st store.Store) *SurveyHandler {
	return &SurveyHandler{drafts: drafts, publication: publication, store: st}
}

type AudienceRequest struct {
	Kind        string   `json:"kind" validate:"required,oneof=all department explicit"`
	Department  string   `json:"department,omitempty"`
	EmployeeIDs []string `json:"employee_ids,omitempty"`
}

type SurveyMetaRequest struct {
	Title         string          `json:"title" validate:"required,min=3,max=300"`
	Description   string          `json:"description" validate:"max=2000"`
	IsAnonymous   bool            `json:"is_anonymous"`
	IsMandatory   bool            `json:"is_mandatory"`
	Audience      AudienceRequest `json:"audience" validate:"required"`
	PointsAwarded int             `json:"points_awarded" validate:"min=0"`
	ReminderDays  int             `json:"reminder_days" validate:"min=0"`
	OpenDate      time.Time       `json:"open_date"`
	CloseDate     time.Time       `json:"close_date"`
}

type AddSectionRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=300"`
	Description string `json:"description" validate:"max=2000"`
}

type AddQuestionRequest struct {
	Text       string                `json:"text" validate:"required,min=1,max=500"`
	Type       string                `json:"type" validate:"required"`
	IsRequired bool                  `json:"is_required"`
	Config     QuestionConfigRequest `json:"config"`
}

type QuestionConfigRequest struct {
	MinValue  int                 `json:"min_value,omitempty"`
	MaxValue  int                 `json:"max_value,omitempty"`
	Labels    map[string]string   `json:"labels,omitempty"`
	Options   []CreateOptionInput `json:"options,omitempty" validate:"dive"`
	Rows      []CreateOptionInput `json:"rows,omitempty" validate:"dive"`
	MaxLength int                 `json:"max_length,omitempty"`
}

type CreateOptionInput struct {
	Text  string `json:"text" validate:"required,min=1,max=200"`
	Image string `json:"image,omitempty"`
}

type ReorderRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

type SurveyListFilters struct {
	State string `form:"state"`
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
}

func (m *SurveyMetaRequest) toMeta() (services.SurveyMeta, error) {
	meta := services.SurveyMeta{
		Title:         m.Title,
		Description:   m.Description,
		IsAnonymous:   m.IsAnonymous,
		IsMandatory:   m.IsMandatory,
		PointsAwarded: m.PointsAwarded,
		ReminderDays:  m.ReminderDays,
		OpenDate:      m.OpenDate,
		CloseDate:     m.CloseDate,
		Audience: models.AudienceSelector{
			Kind:       m.Audience.Kind,
			Department: m.Audience.Department,
		},
	}
	for _, hex := range m.Audience.EmployeeIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return meta, err
		}
		meta.Audience.EmployeeIDs = append(meta.Audience.EmployeeIDs, id)
	}
	return meta, nil
}

// CreateSurvey creates a new draft owned by the calling admin.
func (h *SurveyHandler) CreateSurvey(c *gin.Context) {
	var req SurveyMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if err := validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid survey configuration", "details": err.Error()})
		return
	}

	meta, err := req.toMeta()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid employee id in audience", "details": err.Error()})
		return
	}

	creatorID, _ := c.Get("employee_id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := h.drafts.CreateSurvey(ctx, creatorID.(primitive.ObjectID), meta)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid survey configuration", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, s)
}

// GetSurvey returns one survey with its full structure.
func (h *SurveyHandler) GetSurvey(c *gin.Context) {
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
	c.JSON(http.StatusOK, s)
}

// ListSurveys returns surveys for the admin dashboard, newest first.
func (h *SurveyHandler) ListSurveys(c *gin.Context) {
	var filters SurveyListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 100 {
		filters.Limit = 20
	}

	f := store.SurveyFilter{
		Limit: filters.Limit,
		Skip:  (filters.Page - 1) * filters.Limit,
	}
	if filters.State != "" {
		f.States = []string{filters.State}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	surveys, err := h.store.ListSurveys(ctx, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing surveys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"surveys": surveys,
		"page":    filters.Page,
		"limit":   filters.Limit,
	})
}

// UpdateSurvey replaces the metadata of a draft.
func (h *SurveyHandler) UpdateSurvey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SurveyMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if err := validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid survey configuration", "details": err.Error()})
		return
	}
	meta, err := req.toMeta()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid employee id in audience", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := h.drafts.UpdateMeta(ctx, id, meta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// AddSection appends an empty section to a draft.
func (h *SurveyHandler) AddSection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AddSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if err := validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid section", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	section, err := h.drafts.AddSection(ctx, id, req.Title, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, section)
}

// RemoveSection deletes a draft section with all its questions.
func (h *SurveyHandler) RemoveSection(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sectionID, ok := pathID(c, "sectionId")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.drafts.RemoveSection(ctx, id, sectionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Section removed"})
}

// AddQuestion appends a question to a draft section.
func (h *SurveyHandler) AddQuestion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sectionID, ok := pathID(c, "sectionId")
	if !ok {
		return
	}
	var req AddQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if err := validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question", "details": err.Error()})
		return
	}

	q := models.Question{
		Text:       req.Text,
		Type:       req.Type,
		IsRequired: req.IsRequired,
		Config: models.QuestionConfig{
			MinValue:  req.Config.MinValue,
			MaxValue:  req.Config.MaxValue,
			Labels:    req.Config.Labels,
			MaxLength: req.Config.MaxLength,
		},
	}
	for _, opt := range req.Config.Options {
		q.Config.Options = append(q.Config.Options, models.Option{Text: opt.Text, Image: opt.Image})
	}
	for _, row := range req.Config.Rows {
		q.Config.Rows = append(q.Config.Rows, models.Option{Text: row.Text, Image: row.Image})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	created, err := h.drafts.AddQuestion(ctx, id, sectionID, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// RemoveQuestion deletes a question from a draft section.
func (h *SurveyHandler) RemoveQuestion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sectionID, ok := pathID(c, "sectionId")
	if !ok {
		return
	}
	questionID, ok := pathID(c, "questionId")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.drafts.RemoveQuestion(ctx, id, sectionID, questionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Question removed"})
}

// ReorderSections applies a full permutation of the draft's section ids.
func (h *SurveyHandler) ReorderSections(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ids, ok := h.bindReorder(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.drafts.ReorderSections(ctx, id, ids); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sections reordered"})
}

// ReorderQuestions applies a full permutation of a section's question ids.
func (h *SurveyHandler) ReorderQuestions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sectionID, ok := pathID(c, "sectionId")
	if !ok {
		return
	}
	ids, ok := h.bindReorder(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.drafts.ReorderQuestions(ctx, id, sectionID, ids); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Questions reordered"})
}

func (h *SurveyHandler) bindReorder(c *gin.Context) ([]primitive.ObjectID, bool) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return nil, false
	}
	if err := validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order", "details": err.Error()})
		return nil, false
	}
	ids := make([]primitive.ObjectID, 0, len(req.IDs))
	for _, hex := range req.IDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id in order", "details": err.Error()})
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// PublishSurvey flips a draft to active and snapshots its audience.
func (h *SurveyHandler) PublishSurvey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s, err := h.publication.Publish(ctx, id, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// CompleteSurvey closes an active survey for new responses.
func (h *SurveyHandler) CompleteSurvey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.publication.Complete(ctx, id, time.Now()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Survey completed"})
}

// ArchiveSurvey hides a completed survey from the default listings.
func (h *SurveyHandler) ArchiveSurvey(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.publication.Archive(ctx, id, time.Now()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Survey archived"})
}

// DueSurveys lists active surveys whose close date has elapsed.
func (h *SurveyHandler) DueSurveys(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	due, err := h.publication.DueSurveys(ctx, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing due surveys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"surveys": due})
}

// SweepDueSurveys closes every survey past its close date.
func (h *SurveyHandler) SweepDueSurveys(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := h.publication.Sweep(ctx, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error sweeping due surveys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": n})
}
