// internal/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/survey"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is the in-process Store used by tests and `ENV=local` runs.
// All guarded operations take the same lock, giving them the atomicity the
// Mongo implementation gets from single-document updates.
type MemoryStore struct {
	mu         sync.Mutex
	surveys    map[primitive.ObjectID]*models.Survey
	recipients map[primitive.ObjectID][]*models.Recipient
	runs       map[string]*models.SurveyRun
	responses  []*models.Response
	stats      map[primitive.ObjectID]map[primitive.ObjectID]*models.QuestionStats
	employees  map[primitive.ObjectID]*models.Employee
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		surveys:    make(map[primitive.ObjectID]*models.Survey),
		recipients: make(map[primitive.ObjectID][]*models.Recipient),
		runs:       make(map[string]*models.SurveyRun),
		stats:      make(map[primitive.ObjectID]map[primitive.ObjectID]*models.QuestionStats),
		employees:  make(map[primitive.ObjectID]*models.Employee),
	}
}

// SeedEmployee inserts a directory entry; the engine itself never writes
// employees.
func (m *MemoryStore) SeedEmployee(e models.Employee) models.Employee {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	m.employees[e.ID] = &e
	return e
}

// ---- surveys ----

func (m *MemoryStore) InsertSurvey(_ context.Context, s *models.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	m.surveys[s.ID] = copySurvey(s)
	return nil
}

func (m *MemoryStore) GetSurvey(_ context.Context, id primitive.ObjectID) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, &survey.NotFoundError{Resource: "survey", ID: id.Hex()}
	}
	return copySurvey(s), nil
}

func (m *MemoryStore) ListSurveys(_ context.Context, f SurveyFilter) ([]models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Survey
	for _, s := range m.surveys {
		if len(f.States) > 0 && !contains(f.States, s.State) {
			continue
		}
		if f.CreatorID != nil && s.CreatorID != *f.CreatorID {
			continue
		}
		if f.DueBefore != nil {
			if s.State != models.SurveyStateActive || !s.IsPastDue(*f.DueBefore) {
				continue
			}
		}
		out = append(out, *copySurvey(s))
	}
	return out, nil
}

func (m *MemoryStore) ReplaceDraft(_ context.Context, s *models.Survey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.surveys[s.ID]
	if !ok {
		return &survey.NotFoundError{Resource: "survey", ID: s.ID.Hex()}
	}
	if current.State != models.SurveyStateDraft {
		return &survey.ImmutableStructureError{State: current.State}
	}
	m.surveys[s.ID] = copySurvey(s)
	return nil
}

func (m *MemoryStore) PublishSurvey(_ context.Context, id primitive.ObjectID, recipients []models.Recipient, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return &survey.NotFoundError{Resource: "survey", ID: id.Hex()}
	}
	if s.State != models.SurveyStateDraft {
		return &survey.InvalidStateError{Op: "publish", State: s.State}
	}
	s.State = models.SurveyStateActive
	publishedAt := now
	s.PublishedAt = &publishedAt
	s.TotalRecipients = len(recipients)
	s.CompletedTally = 0
	s.UpdatedAt = now

	for i := range recipients {
		r := recipients[i]
		if r.ID.IsZero() {
			r.ID = primitive.NewObjectID()
		}
		m.recipients[id] = append(m.recipients[id], &r)
	}
	return nil
}

func (m *MemoryStore) TransitionState(_ context.Context, id primitive.ObjectID, from, to string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return false, &survey.NotFoundError{Resource: "survey", ID: id.Hex()}
	}
	if s.State != from {
		return false, nil
	}
	s.State = to
	s.UpdatedAt = now
	switch to {
	case models.SurveyStateCompleted:
		t := now
		s.CompletedAt = &t
	case models.SurveyStateArchived:
		t := now
		s.ArchivedAt = &t
	}
	return true, nil
}

// ---- recipients ----

func (m *MemoryStore) GetRecipient(_ context.Context, surveyID, employeeID primitive.ObjectID) (*models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients[surveyID] {
		if r.EmployeeID == employeeID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, &survey.NotFoundError{Resource: "recipient"}
}

func (m *MemoryStore) ListRecipients(_ context.Context, surveyID primitive.ObjectID) ([]models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Recipient, 0, len(m.recipients[surveyID]))
	for _, r := range m.recipients[surveyID] {
		out = append(out, *r)
	}
	return out, nil
}

func (m *MemoryStore) ListAssignedSurveyIDs(_ context.Context, employeeID primitive.ObjectID) ([]primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []primitive.ObjectID
	for surveyID, rs := range m.recipients {
		for _, r := range rs {
			if r.EmployeeID == employeeID {
				ids = append(ids, surveyID)
				break
			}
		}
	}
	return ids, nil
}

func (m *MemoryStore) CountRecipients(_ context.Context, surveyID primitive.ObjectID) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, completed := 0, 0
	for _, r := range m.recipients[surveyID] {
		total++
		if r.Status == models.RecipientStatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func (m *MemoryStore) CompleteRecipient(_ context.Context, surveyID, employeeID primitive.ObjectID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients[surveyID] {
		if r.EmployeeID == employeeID && r.Status == models.RecipientStatusPending {
			r.Status = models.RecipientStatusCompleted
			t := now
			r.CompletedAt = &t
			return true, nil
		}
	}
	return false, nil
}

// ---- anonymous runs ----

func (m *MemoryStore) CreateRun(_ context.Context, run *models.SurveyRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.Token] = &cp
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, token string) (*models.SurveyRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[token]
	if !ok {
		return nil, &survey.NotFoundError{Resource: "survey run"}
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) FinalizeRun(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[token]
	if !ok || run.Finalized {
		return false, nil
	}
	run.Finalized = true
	return true, nil
}

func (m *MemoryStore) IncrementCompletedTally(_ context.Context, surveyID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.surveys[surveyID]; ok {
		s.CompletedTally++
	}
	return nil
}

// ---- responses ----

// respondentStillPending is called with the lock held.
func (m *MemoryStore) respondentStillPending(r *models.Response) error {
	if r.RecipientID != nil {
		for _, rec := range m.recipients[r.SurveyID] {
			if rec.EmployeeID == *r.RecipientID && rec.Status == models.RecipientStatusCompleted {
				return &survey.AlreadyCompletedError{SurveyID: r.SurveyID.Hex()}
			}
		}
		return nil
	}
	if run, ok := m.runs[r.RunToken]; ok && run.Finalized {
		return &survey.AlreadyCompletedError{SurveyID: r.SurveyID.Hex()}
	}
	return nil
}

func sameRespondent(a, b *models.Response) bool {
	if a.RecipientID != nil && b.RecipientID != nil {
		return *a.RecipientID == *b.RecipientID
	}
	if a.RecipientID == nil && b.RecipientID == nil {
		return a.RunToken == b.RunToken
	}
	return false
}

func (m *MemoryStore) UpsertResponses(_ context.Context, rs []models.Response) ([]models.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(rs) == 0 {
		return nil, nil
	}
	// Same critical section as CompleteRecipient/FinalizeRun: a respondent
	// who finalized after the service's status check must not overwrite the
	// finalized rows.
	if err := m.respondentStillPending(&rs[0]); err != nil {
		return nil, err
	}
	var replaced []models.Response
	for i := range rs {
		r := rs[i]
		if r.ID.IsZero() {
			r.ID = primitive.NewObjectID()
		}
		found := false
		for j, existing := range m.responses {
			if existing.SurveyID == r.SurveyID && existing.QuestionID == r.QuestionID && sameRespondent(existing, &r) {
				replaced = append(replaced, *copyResponse(existing))
				m.responses[j] = copyResponse(&r)
				found = true
				break
			}
		}
		if !found {
			m.responses = append(m.responses, copyResponse(&r))
		}
	}
	return replaced, nil
}

func (m *MemoryStore) ListSurveyResponses(_ context.Context, surveyID primitive.ObjectID) ([]models.Response, error) {
	return m.filterResponses(func(r *models.Response) bool { return r.SurveyID == surveyID })
}

func (m *MemoryStore) ListQuestionResponses(_ context.Context, surveyID, questionID primitive.ObjectID) ([]models.Response, error) {
	return m.filterResponses(func(r *models.Response) bool {
		return r.SurveyID == surveyID && r.QuestionID == questionID
	})
}

func (m *MemoryStore) ListRespondentResponses(_ context.Context, surveyID primitive.ObjectID, recipientID *primitive.ObjectID, runToken string) ([]models.Response, error) {
	probe := models.Response{RecipientID: recipientID, RunToken: runToken}
	return m.filterResponses(func(r *models.Response) bool {
		return r.SurveyID == surveyID && sameRespondent(r, &probe)
	})
}

func (m *MemoryStore) filterResponses(keep func(*models.Response) bool) ([]models.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Response
	for _, r := range m.responses {
		if keep(r) {
			out = append(out, *copyResponse(r))
		}
	}
	return out, nil
}

// ---- incremental statistics ----

func (m *MemoryStore) ApplyStatDeltas(_ context.Context, surveyID primitive.ObjectID, deltas []models.StatDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byQuestion, ok := m.stats[surveyID]
	if !ok {
		byQuestion = make(map[primitive.ObjectID]*models.QuestionStats)
		m.stats[surveyID] = byQuestion
	}
	for i := range deltas {
		d := &deltas[i]
		qs, ok := byQuestion[d.QuestionID]
		if !ok {
			qs = &models.QuestionStats{
				SurveyID:             surveyID,
				QuestionID:           d.QuestionID,
				Distribution:         map[string]int{},
				PositionDistribution: map[string]int{},
			}
			byQuestion[d.QuestionID] = qs
		}
		qs.Count += d.Count
		qs.Sum += d.Sum
		for k, v := range d.Distribution {
			qs.Distribution[k] += v
		}
		for k, v := range d.PositionDistribution {
			qs.PositionDistribution[k] += v
		}
	}
	return nil
}

func (m *MemoryStore) ListQuestionStats(_ context.Context, surveyID primitive.ObjectID) ([]models.QuestionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QuestionStats
	for _, qs := range m.stats[surveyID] {
		cp := *qs
		cp.Distribution = copyIntMap(qs.Distribution)
		cp.PositionDistribution = copyIntMap(qs.PositionDistribution)
		out = append(out, cp)
	}
	return out, nil
}

// ---- directory ----

func (m *MemoryStore) GetEmployee(_ context.Context, id primitive.ObjectID) (*models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, &survey.NotFoundError{Resource: "employee", ID: id.Hex()}
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) ListEmployees(_ context.Context, sel models.AudienceSelector) ([]models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Employee
	for _, e := range m.employees {
		if !e.IsActive {
			continue
		}
		switch sel.Kind {
		case models.AudienceAll:
		case models.AudienceDepartment:
			if e.Department != sel.Department {
				continue
			}
		case models.AudienceExplicit:
			if !containsID(sel.EmployeeIDs, e.ID) {
				continue
			}
		default:
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// ---- copy helpers ----

func copySurvey(s *models.Survey) *models.Survey {
	cp := *s
	cp.Sections = make([]models.Section, len(s.Sections))
	for i := range s.Sections {
		sec := s.Sections[i]
		sec.Questions = make([]models.Question, len(s.Sections[i].Questions))
		for j := range s.Sections[i].Questions {
			q := s.Sections[i].Questions[j]
			q.Config.Options = append([]models.Option(nil), q.Config.Options...)
			q.Config.Rows = append([]models.Option(nil), q.Config.Rows...)
			q.Config.Labels = copyStringMap(q.Config.Labels)
			sec.Questions[j] = q
		}
		cp.Sections[i] = sec
	}
	cp.Audience.EmployeeIDs = append([]primitive.ObjectID(nil), s.Audience.EmployeeIDs...)
	return &cp
}

func copyResponse(r *models.Response) *models.Response {
	cp := *r
	cp.Answer.OptionIDs = append([]primitive.ObjectID(nil), r.Answer.OptionIDs...)
	if r.Answer.RowSelections != nil {
		cp.Answer.RowSelections = make(map[string]primitive.ObjectID, len(r.Answer.RowSelections))
		for k, v := range r.Answer.RowSelections {
			cp.Answer.RowSelections[k] = v
		}
	}
	if r.Answer.Number != nil {
		n := *r.Answer.Number
		cp.Answer.Number = &n
	}
	if r.RecipientID != nil {
		id := *r.RecipientID
		cp.RecipientID = &id
	}
	return &cp
}

func copyIntMap(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsID(list []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
