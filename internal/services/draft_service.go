// internal/services/draft_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/store"
	"teampulse-backend/internal/survey"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DraftService assembles survey drafts: ordered sections holding ordered
// questions. Every mutation requires the survey to still be in draft; the
// store enforces that atomically so a racing publish can never interleave
// with an edit.
type DraftService struct {
	store store.Store
	log   *logrus.Logger
}

func NewDraftService(st store.Store, log *logrus.Logger) *DraftService {
	return &DraftService{store: st, log: log}
}

// SurveyMeta carries the creator-editable survey settings.
type SurveyMeta struct {
	Title         string
	Description   string
	IsAnonymous   bool
	IsMandatory   bool
	Audience      models.AudienceSelector
	PointsAwarded int
	ReminderDays  int
	OpenDate      time.Time
	CloseDate     time.Time
}

func (ds *DraftService) CreateSurvey(ctx context.Context, creatorID primitive.ObjectID, meta SurveyMeta) (*models.Survey, error) {
	if meta.Audience.Kind == "" {
		meta.Audience.Kind = models.AudienceAll
	}
	if !meta.CloseDate.IsZero() && !meta.OpenDate.IsZero() && !meta.CloseDate.After(meta.OpenDate) {
		return nil, fmt.Errorf("close_date must be after open_date")
	}

	now := time.Now()
	s := &models.Survey{
		CreatorID:     creatorID,
		Title:         meta.Title,
		Description:   meta.Description,
		IsAnonymous:   meta.IsAnonymous,
		IsMandatory:   meta.IsMandatory,
		Audience:      meta.Audience,
		PointsAwarded: meta.PointsAwarded,
		ReminderDays:  meta.ReminderDays,
		OpenDate:      meta.OpenDate,
		CloseDate:     meta.CloseDate,
		Sections:      []models.Section{},
		State:         models.SurveyStateDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := ds.store.InsertSurvey(ctx, s); err != nil {
		return nil, err
	}

	ds.log.WithFields(logrus.Fields{
		"survey_id": s.ID.Hex(),
		"creator":   creatorID.Hex(),
	}).Info("survey draft created")
	return s, nil
}

// UpdateMeta edits the survey settings. Allowed only in draft; after publish
// even the metadata is locked to keep reporting stable.
func (ds *DraftService) UpdateMeta(ctx context.Context, surveyID primitive.ObjectID, meta SurveyMeta) (*models.Survey, error) {
	s, err := ds.draft(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if meta.Audience.Kind == "" {
		meta.Audience.Kind = models.AudienceAll
	}
	s.Title = meta.Title
	s.Description = meta.Description
	s.IsAnonymous = meta.IsAnonymous
	s.IsMandatory = meta.IsMandatory
	s.Audience = meta.Audience
	s.PointsAwarded = meta.PointsAwarded
	s.ReminderDays = meta.ReminderDays
	s.OpenDate = meta.OpenDate
	s.CloseDate = meta.CloseDate
	s.UpdatedAt = time.Now()

	if err := ds.store.ReplaceDraft(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (ds *DraftService) AddSection(ctx context.Context, surveyID primitive.ObjectID, title, description string) (*models.Section, error) {
	s, err := ds.draft(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	section := models.Section{
		ID:          primitive.NewObjectID(),
		Title:       title,
		Description: description,
		Order:       len(s.Sections),
		Questions:   []models.Question{},
	}
	s.Sections = append(s.Sections, section)
	s.UpdatedAt = time.Now()

	if err := ds.store.ReplaceDraft(ctx, s); err != nil {
		return nil, err
	}
	return &section, nil
}

func (ds *DraftService) RemoveSection(ctx context.Context, surveyID, sectionID primitive.ObjectID) error {
	s, err := ds.draft(ctx, surveyID)
	if err != nil {
		return err
	}

	idx := -1
	for i := range s.Sections {
		if s.Sections[i].ID == sectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &survey.NotFoundError{Resource: "section", ID: sectionID.Hex()}
	}

	s.Sections = append(s.Sections[:idx], s.Sections[idx+1:]...)
	renumberSections(s)
	s.UpdatedAt = time.Now()
	return ds.store.ReplaceDraft(ctx, s)
}

// AddQuestion validates the type tag against the registry before anything is
// written; an unknown tag performs no partial write.
func (ds *DraftService) AddQuestion(ctx context.Context, surveyID, sectionID primitive.ObjectID, q models.Question) (*models.Question, error) {
	def, err := survey.Describe(q.Type)
	if err != nil {
		return nil, err
	}

	s, err := ds.draft(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	section := s.FindSection(sectionID)
	if section == nil {
		return nil, &survey.NotFoundError{Resource: "section", ID: sectionID.Hex()}
	}

	q.ID = primitive.NewObjectID()
	for i := range q.Config.Options {
		if q.Config.Options[i].ID.IsZero() {
			q.Config.Options[i].ID = primitive.NewObjectID()
		}
	}
	for i := range q.Config.Rows {
		if q.Config.Rows[i].ID.IsZero() {
			q.Config.Rows[i].ID = primitive.NewObjectID()
		}
	}
	if err := def.ValidateConfig(&q); err != nil {
		return nil, fmt.Errorf("invalid %s question config: %w", q.Type, err)
	}

	q.Order = len(section.Questions)
	section.Questions = append(section.Questions, q)
	s.UpdatedAt = time.Now()

	if err := ds.store.ReplaceDraft(ctx, s); err != nil {
		return nil, err
	}
	return &q, nil
}

func (ds *DraftService) RemoveQuestion(ctx context.Context, surveyID, sectionID, questionID primitive.ObjectID) error {
	s, err := ds.draft(ctx, surveyID)
	if err != nil {
		return err
	}
	section := s.FindSection(sectionID)
	if section == nil {
		return &survey.NotFoundError{Resource: "section", ID: sectionID.Hex()}
	}

	idx := -1
	for i := range section.Questions {
		if section.Questions[i].ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &survey.NotFoundError{Resource: "question", ID: questionID.Hex()}
	}

	section.Questions = append(section.Questions[:idx], section.Questions[idx+1:]...)
	renumberQuestions(section)
	s.UpdatedAt = time.Now()
	return ds.store.ReplaceDraft(ctx, s)
}

// ReorderSections reassigns every section order in one write, so readers
// never observe gaps or duplicates.
func (ds *DraftService) ReorderSections(ctx context.Context, surveyID primitive.ObjectID, orderedIDs []primitive.ObjectID) error {
	s, err := ds.draft(ctx, surveyID)
	if err != nil {
		return err
	}

	current := make(map[primitive.ObjectID]models.Section, len(s.Sections))
	for i := range s.Sections {
		current[s.Sections[i].ID] = s.Sections[i]
	}
	reordered, err := applyOrder(current, orderedIDs)
	if err != nil {
		return err
	}

	s.Sections = reordered
	renumberSections(s)
	s.UpdatedAt = time.Now()
	return ds.store.ReplaceDraft(ctx, s)
}

func (ds *DraftService) ReorderQuestions(ctx context.Context, surveyID, sectionID primitive.ObjectID, orderedIDs []primitive.ObjectID) error {
	s, err := ds.draft(ctx, surveyID)
	if err != nil {
		return err
	}
	section := s.FindSection(sectionID)
	if section == nil {
		return &survey.NotFoundError{Resource: "section", ID: sectionID.Hex()}
	}

	current := make(map[primitive.ObjectID]models.Question, len(section.Questions))
	for i := range section.Questions {
		current[section.Questions[i].ID] = section.Questions[i]
	}
	reordered, err := applyOrder(current, orderedIDs)
	if err != nil {
		return err
	}

	section.Questions = reordered
	renumberQuestions(section)
	s.UpdatedAt = time.Now()
	return ds.store.ReplaceDraft(ctx, s)
}

// draft loads the survey and rejects anything that already left draft.
func (ds *DraftService) draft(ctx context.Context, surveyID primitive.ObjectID) (*models.Survey, error) {
	s, err := ds.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if s.State != models.SurveyStateDraft {
		return nil, &survey.ImmutableStructureError{State: s.State}
	}
	return s, nil
}

// applyOrder rebuilds a sibling list from orderedIDs, requiring every
// sibling to appear exactly once.
func applyOrder[T any](current map[primitive.ObjectID]T, orderedIDs []primitive.ObjectID) ([]T, error) {
	if len(orderedIDs) != len(current) {
		return nil, fmt.Errorf("reorder must list every sibling exactly once")
	}
	out := make([]T, 0, len(orderedIDs))
	seen := make(map[primitive.ObjectID]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		item, ok := current[id]
		if !ok || seen[id] {
			return nil, fmt.Errorf("reorder must list every sibling exactly once")
		}
		seen[id] = true
		out = append(out, item)
	}
	return out, nil
}

func renumberSections(s *models.Survey) {
	for i := range s.Sections {
		s.Sections[i].Order = i
	}
}

func renumberQuestions(section *models.Section) {
	for i := range section.Questions {
		section.Questions[i].Order = i
	}
}
