// internal/services/events.go
package services

import (
	"context"
	"time"

	"teampulse-backend/internal/config"
	"teampulse-backend/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompletionFact is the single "survey completed" event handed to the
// rewards ledger. EmployeeID is omitted for anonymous surveys; the ledger
// update itself is outside the engine.
type CompletionFact struct {
	SurveyID    string    `json:"survey_id"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	Points      int       `json:"points"`
	Anonymous   bool      `json:"anonymous"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompletionEmitter posts completion facts to the rewards webhook. Emission
// is best-effort: a delivery failure is logged, never surfaced to the
// respondent, and the collector calls Emit exactly once per finalize winner.
type CompletionEmitter struct {
	client     *resty.Client
	webhookURL string
	log        *logrus.Logger
}

func NewCompletionEmitter(cfg *config.Config, log *logrus.Logger) *CompletionEmitter {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	if cfg.RewardsWebhookToken != "" {
		client.SetAuthToken(cfg.RewardsWebhookToken)
	}
	return &CompletionEmitter{
		client:     client,
		webhookURL: cfg.RewardsWebhookURL,
		log:        log,
	}
}

func (ce *CompletionEmitter) Emit(ctx context.Context, s *models.Survey, employeeID *primitive.ObjectID, completedAt time.Time) {
	fact := CompletionFact{
		SurveyID:    s.ID.Hex(),
		Points:      s.PointsAwarded,
		Anonymous:   s.IsAnonymous,
		CompletedAt: completedAt,
	}
	if !s.IsAnonymous && employeeID != nil {
		fact.EmployeeID = employeeID.Hex()
	}

	if ce.webhookURL == "" {
		ce.log.WithField("survey_id", fact.SurveyID).Debug("rewards webhook not configured, completion fact dropped")
		return
	}

	resp, err := ce.client.R().
		SetContext(ctx).
		SetBody(fact).
		Post(ce.webhookURL)
	if err != nil {
		ce.log.WithError(err).WithField("survey_id", fact.SurveyID).Warn("failed to deliver completion fact")
		return
	}
	if resp.IsError() {
		ce.log.WithFields(logrus.Fields{
			"survey_id": fact.SurveyID,
			"status":    resp.StatusCode(),
		}).Warn("rewards webhook rejected completion fact")
	}
}
