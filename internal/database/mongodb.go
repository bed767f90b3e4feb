// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"teampulse-backend/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDB(cfg *config.Config) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.MongoTimeout)*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.MongoURI).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	database := client.Database(cfg.DatabaseName)

	log.Printf("Connected to MongoDB: %s", cfg.DatabaseName)

	return &MongoDB{
		Client:   client,
		Database: database,
	}, nil
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %w", err)
	}

	log.Println("Disconnected from MongoDB")
	return nil
}

// CreateIndexes creates the indexes for all collections.
// NOTE: bson.D is required here, key order matters for compound indexes.
func (m *MongoDB) CreateIndexes(ctx context.Context) error {
	surveyCollection := m.Database.Collection("surveys")
	surveyIndexes := []mongo.IndexModel{
		{
			// Dashboard listing: filter by state, newest first
			Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
		{
			// Due-survey sweep: active surveys past their close date
			Keys: bson.D{
				{Key: "close_date", Value: 1},
				{Key: "state", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "creator_id", Value: 1}},
		},
	}

	if _, err := surveyCollection.Indexes().CreateMany(ctx, surveyIndexes); err != nil {
		return fmt.Errorf("error creating survey indexes: %w", err)
	}

	recipientCollection := m.Database.Collection("survey_recipients")
	recipientIndexes := []mongo.IndexModel{
		{
			// One recipient row per employee per survey
			Keys: bson.D{
				{Key: "survey_id", Value: 1},
				{Key: "employee_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			// Assigned-surveys listing for one employee
			Keys: bson.D{{Key: "employee_id", Value: 1}},
		},
		{
			// Completion counting
			Keys: bson.D{
				{Key: "survey_id", Value: 1},
				{Key: "status", Value: 1},
			},
		},
	}

	if _, err := recipientCollection.Indexes().CreateMany(ctx, recipientIndexes); err != nil {
		return fmt.Errorf("error creating recipient indexes: %w", err)
	}

	runCollection := m.Database.Collection("survey_runs")
	runIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "survey_id", Value: 1}},
		},
	}

	if _, err := runCollection.Indexes().CreateMany(ctx, runIndexes); err != nil {
		return fmt.Errorf("error creating run indexes: %w", err)
	}

	responseCollection := m.Database.Collection("survey_responses")
	responseIndexes := []mongo.IndexModel{
		{
			// Aggregation: all answers of one question
			Keys: bson.D{
				{Key: "survey_id", Value: 1},
				{Key: "question_id", Value: 1},
			},
		},
		{
			// One answer per question per identified respondent
			Keys: bson.D{
				{Key: "survey_id", Value: 1},
				{Key: "question_id", Value: 1},
				{Key: "recipient_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "recipient_id", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
		{
			// One answer per question per anonymous run
			Keys: bson.D{
				{Key: "survey_id", Value: 1},
				{Key: "question_id", Value: 1},
				{Key: "run_token", Value: 1},
			},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "run_token", Value: bson.D{{Key: "$gt", Value: ""}}}}),
		},
	}

	if _, err := responseCollection.Indexes().CreateMany(ctx, responseIndexes); err != nil {
		return fmt.Errorf("error creating response indexes: %w", err)
	}

	statsCollection := m.Database.Collection("survey_stats")
	statsIndexes := []mongo.IndexModel{
		{
			// One counter doc per question
			Keys: bson.D{
				{Key: "survey_id", Value: 1},
				{Key: "question_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := statsCollection.Indexes().CreateMany(ctx, statsIndexes); err != nil {
		return fmt.Errorf("error creating stats indexes: %w", err)
	}

	employeeCollection := m.Database.Collection("employees")
	employeeIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Department audience resolution
			Keys: bson.D{
				{Key: "department", Value: 1},
				{Key: "is_active", Value: 1},
			},
		},
	}

	if _, err := employeeCollection.Indexes().CreateMany(ctx, employeeIndexes); err != nil {
		return fmt.Errorf("error creating employee indexes: %w", err)
	}

	log.Println("✅ Indexes created for all collections")
	return nil
}
