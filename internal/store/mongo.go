// internal/store/mongo.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"teampulse-backend/internal/models"
	"teampulse-backend/internal/survey"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on top of the platform's MongoDB database.
type MongoStore struct {
	surveys    *mongo.Collection
	recipients *mongo.Collection
	runs       *mongo.Collection
	responses  *mongo.Collection
	stats      *mongo.Collection
	employees  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		surveys:    db.Collection("surveys"),
		recipients: db.Collection("survey_recipients"),
		runs:       db.Collection("survey_runs"),
		responses:  db.Collection("survey_responses"),
		stats:      db.Collection("survey_stats"),
		employees:  db.Collection("employees"),
	}
}

// ---- surveys ----

func (m *MongoStore) InsertSurvey(ctx context.Context, s *models.Survey) error {
	result, err := m.surveys.InsertOne(ctx, s)
	if err != nil {
		return fmt.Errorf("inserting survey: %w", err)
	}
	s.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (m *MongoStore) GetSurvey(ctx context.Context, id primitive.ObjectID) (*models.Survey, error) {
	var s models.Survey
	err := m.surveys.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &survey.NotFoundError{Resource: "survey", ID: id.Hex()}
		}
		return nil, fmt.Errorf("fetching survey: %w", err)
	}
	return &s, nil
}

func (m *MongoStore) ListSurveys(ctx context.Context, f SurveyFilter) ([]models.Survey, error) {
	query := bson.M{}
	if len(f.States) > 0 {
		query["state"] = bson.M{"$in": f.States}
	}
	if f.CreatorID != nil {
		query["creator_id"] = *f.CreatorID
	}
	if f.DueBefore != nil {
		query["state"] = models.SurveyStateActive
		query["close_date"] = bson.M{"$lt": *f.DueBefore, "$ne": time.Time{}}
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		findOptions.SetLimit(int64(f.Limit))
		findOptions.SetSkip(int64(f.Skip))
	}

	cursor, err := m.surveys.Find(ctx, query, findOptions)
	if err != nil {
		return nil, fmt.Errorf("listing surveys: %w", err)
	}
	defer cursor.Close(ctx)

	var surveys []models.Survey
	if err := cursor.All(ctx, &surveys); err != nil {
		return nil, fmt.Errorf("decoding surveys: %w", err)
	}
	return surveys, nil
}

func (m *MongoStore) ReplaceDraft(ctx context.Context, s *models.Survey) error {
	result, err := m.surveys.ReplaceOne(
		ctx,
		bson.M{"_id": s.ID, "state": models.SurveyStateDraft},
		s,
	)
	if err != nil {
		return fmt.Errorf("replacing draft survey: %w", err)
	}
	if result.MatchedCount == 0 {
		// Either the survey is gone or it left draft while we were editing.
		current, getErr := m.GetSurvey(ctx, s.ID)
		if getErr != nil {
			return getErr
		}
		return &survey.ImmutableStructureError{State: current.State}
	}
	return nil
}

func (m *MongoStore) PublishSurvey(ctx context.Context, id primitive.ObjectID, recipients []models.Recipient, now time.Time) error {
	result, err := m.surveys.UpdateOne(
		ctx,
		bson.M{"_id": id, "state": models.SurveyStateDraft},
		bson.M{"$set": bson.M{
			"state":            models.SurveyStateActive,
			"published_at":     now,
			"total_recipients": len(recipients),
			"completed_tally":  0,
			"updated_at":       now,
		}},
	)
	if err != nil {
		return fmt.Errorf("publishing survey: %w", err)
	}
	if result.MatchedCount == 0 {
		current, getErr := m.GetSurvey(ctx, id)
		if getErr != nil {
			return getErr
		}
		return &survey.InvalidStateError{Op: "publish", State: current.State}
	}

	if len(recipients) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(recipients))
	for i := range recipients {
		docs = append(docs, recipients[i])
	}
	if _, err := m.recipients.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("inserting recipients: %w", err)
	}
	return nil
}

func (m *MongoStore) TransitionState(ctx context.Context, id primitive.ObjectID, from, to string, now time.Time) (bool, error) {
	set := bson.M{"state": to, "updated_at": now}
	switch to {
	case models.SurveyStateCompleted:
		set["completed_at"] = now
	case models.SurveyStateArchived:
		set["archived_at"] = now
	}
	result, err := m.surveys.UpdateOne(ctx, bson.M{"_id": id, "state": from}, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("transitioning survey state: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

// ---- recipients ----

func (m *MongoStore) GetRecipient(ctx context.Context, surveyID, employeeID primitive.ObjectID) (*models.Recipient, error) {
	var r models.Recipient
	err := m.recipients.FindOne(ctx, bson.M{"survey_id": surveyID, "employee_id": employeeID}).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &survey.NotFoundError{Resource: "recipient"}
		}
		return nil, fmt.Errorf("fetching recipient: %w", err)
	}
	return &r, nil
}

func (m *MongoStore) ListRecipients(ctx context.Context, surveyID primitive.ObjectID) ([]models.Recipient, error) {
	cursor, err := m.recipients.Find(ctx, bson.M{"survey_id": surveyID})
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	defer cursor.Close(ctx)

	var recipients []models.Recipient
	if err := cursor.All(ctx, &recipients); err != nil {
		return nil, fmt.Errorf("decoding recipients: %w", err)
	}
	return recipients, nil
}

func (m *MongoStore) ListAssignedSurveyIDs(ctx context.Context, employeeID primitive.ObjectID) ([]primitive.ObjectID, error) {
	cursor, err := m.recipients.Find(ctx, bson.M{"employee_id": employeeID})
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer cursor.Close(ctx)

	var recipients []models.Recipient
	if err := cursor.All(ctx, &recipients); err != nil {
		return nil, fmt.Errorf("decoding assignments: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(recipients))
	for i := range recipients {
		ids = append(ids, recipients[i].SurveyID)
	}
	return ids, nil
}

func (m *MongoStore) CountRecipients(ctx context.Context, surveyID primitive.ObjectID) (int, int, error) {
	total, err := m.recipients.CountDocuments(ctx, bson.M{"survey_id": surveyID})
	if err != nil {
		return 0, 0, fmt.Errorf("counting recipients: %w", err)
	}
	completed, err := m.recipients.CountDocuments(ctx, bson.M{
		"survey_id": surveyID,
		"status":    models.RecipientStatusCompleted,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("counting completed recipients: %w", err)
	}
	return int(total), int(completed), nil
}

func (m *MongoStore) CompleteRecipient(ctx context.Context, surveyID, employeeID primitive.ObjectID, now time.Time) (bool, error) {
	result, err := m.recipients.UpdateOne(
		ctx,
		bson.M{
			"survey_id":   surveyID,
			"employee_id": employeeID,
			"status":      models.RecipientStatusPending,
		},
		bson.M{"$set": bson.M{
			"status":       models.RecipientStatusCompleted,
			"completed_at": now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("completing recipient: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

// ---- anonymous runs ----

func (m *MongoStore) CreateRun(ctx context.Context, run *models.SurveyRun) error {
	if _, err := m.runs.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("creating survey run: %w", err)
	}
	return nil
}

func (m *MongoStore) GetRun(ctx context.Context, token string) (*models.SurveyRun, error) {
	var run models.SurveyRun
	err := m.runs.FindOne(ctx, bson.M{"_id": token}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &survey.NotFoundError{Resource: "survey run"}
		}
		return nil, fmt.Errorf("fetching survey run: %w", err)
	}
	return &run, nil
}

func (m *MongoStore) FinalizeRun(ctx context.Context, token string) (bool, error) {
	result, err := m.runs.UpdateOne(
		ctx,
		bson.M{"_id": token, "finalized": false},
		bson.M{"$set": bson.M{"finalized": true}},
	)
	if err != nil {
		return false, fmt.Errorf("finalizing survey run: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (m *MongoStore) IncrementCompletedTally(ctx context.Context, surveyID primitive.ObjectID) error {
	_, err := m.surveys.UpdateOne(
		ctx,
		bson.M{"_id": surveyID},
		bson.M{"$inc": bson.M{"completed_tally": 1}},
	)
	if err != nil {
		return fmt.Errorf("incrementing completed tally: %w", err)
	}
	return nil
}

// ---- responses ----

func responseKey(r *models.Response) bson.M {
	key := bson.M{
		"survey_id":   r.SurveyID,
		"question_id": r.QuestionID,
	}
	if r.RecipientID != nil {
		key["recipient_id"] = *r.RecipientID
	} else {
		key["run_token"] = r.RunToken
	}
	return key
}

func (m *MongoStore) UpsertResponses(ctx context.Context, rs []models.Response) ([]models.Response, error) {
	if len(rs) == 0 {
		return nil, nil
	}

	// The status check and the writes share one transaction so a respondent
	// finalized after the service's check cannot overwrite the finalized
	// rows.
	session, err := m.responses.Database().Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	defer session.EndSession(ctx)

	var replaced []models.Response
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		replaced = replaced[:0]
		if err := m.respondentStillPending(sc, &rs[0]); err != nil {
			return nil, err
		}
		for i := range rs {
			var prior models.Response
			err := m.responses.FindOneAndReplace(
				sc,
				responseKey(&rs[i]),
				rs[i],
				options.FindOneAndReplace().SetUpsert(true).SetReturnDocument(options.Before),
			).Decode(&prior)
			if err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					continue // fresh insert, nothing replaced
				}
				return nil, fmt.Errorf("upserting response: %w", err)
			}
			replaced = append(replaced, prior)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (m *MongoStore) respondentStillPending(ctx context.Context, r *models.Response) error {
	var err error
	if r.RecipientID != nil {
		err = m.recipients.FindOne(ctx, bson.M{
			"survey_id":   r.SurveyID,
			"employee_id": *r.RecipientID,
			"status":      models.RecipientStatusCompleted,
		}).Err()
	} else {
		err = m.runs.FindOne(ctx, bson.M{"_id": r.RunToken, "finalized": true}).Err()
	}
	if err == nil {
		return &survey.AlreadyCompletedError{SurveyID: r.SurveyID.Hex()}
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("checking respondent status: %w", err)
	}
	return nil
}

func (m *MongoStore) ListSurveyResponses(ctx context.Context, surveyID primitive.ObjectID) ([]models.Response, error) {
	return m.findResponses(ctx, bson.M{"survey_id": surveyID})
}

func (m *MongoStore) ListQuestionResponses(ctx context.Context, surveyID, questionID primitive.ObjectID) ([]models.Response, error) {
	return m.findResponses(ctx, bson.M{"survey_id": surveyID, "question_id": questionID})
}

func (m *MongoStore) ListRespondentResponses(ctx context.Context, surveyID primitive.ObjectID, recipientID *primitive.ObjectID, runToken string) ([]models.Response, error) {
	query := bson.M{"survey_id": surveyID}
	if recipientID != nil {
		query["recipient_id"] = *recipientID
	} else {
		query["run_token"] = runToken
	}
	return m.findResponses(ctx, query)
}

func (m *MongoStore) findResponses(ctx context.Context, query bson.M) ([]models.Response, error) {
	cursor, err := m.responses.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer cursor.Close(ctx)

	var responses []models.Response
	if err := cursor.All(ctx, &responses); err != nil {
		return nil, fmt.Errorf("decoding responses: %w", err)
	}
	return responses, nil
}

// ---- incremental statistics ----

func (m *MongoStore) ApplyStatDeltas(ctx context.Context, surveyID primitive.ObjectID, deltas []models.StatDelta) error {
	for i := range deltas {
		d := &deltas[i]
		inc := bson.M{"count": d.Count, "sum": d.Sum}
		for k, v := range d.Distribution {
			inc["distribution."+k] = v
		}
		for k, v := range d.PositionDistribution {
			inc["position_distribution."+k] = v
		}
		_, err := m.stats.UpdateOne(
			ctx,
			bson.M{"survey_id": surveyID, "question_id": d.QuestionID},
			bson.M{"$inc": inc},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("applying stat delta: %w", err)
		}
	}
	return nil
}

func (m *MongoStore) ListQuestionStats(ctx context.Context, surveyID primitive.ObjectID) ([]models.QuestionStats, error) {
	cursor, err := m.stats.Find(ctx, bson.M{"survey_id": surveyID})
	if err != nil {
		return nil, fmt.Errorf("listing question stats: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.QuestionStats
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding question stats: %w", err)
	}
	return docs, nil
}

// ---- directory ----

func (m *MongoStore) GetEmployee(ctx context.Context, id primitive.ObjectID) (*models.Employee, error) {
	var e models.Employee
	err := m.employees.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &survey.NotFoundError{Resource: "employee", ID: id.Hex()}
		}
		return nil, fmt.Errorf("fetching employee: %w", err)
	}
	return &e, nil
}

func (m *MongoStore) ListEmployees(ctx context.Context, sel models.AudienceSelector) ([]models.Employee, error) {
	query := bson.M{"is_active": true}
	switch sel.Kind {
	case models.AudienceAll:
		// no extra filter
	case models.AudienceDepartment:
		query["department"] = sel.Department
	case models.AudienceExplicit:
		query["_id"] = bson.M{"$in": sel.EmployeeIDs}
	default:
		return nil, fmt.Errorf("unknown audience kind %q", sel.Kind)
	}

	cursor, err := m.employees.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing employees: %w", err)
	}
	defer cursor.Close(ctx)

	var employees []models.Employee
	if err := cursor.All(ctx, &employees); err != nil {
		return nil, fmt.Errorf("decoding employees: %w", err)
	}
	return employees, nil
}
