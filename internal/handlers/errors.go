// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"teampulse-backend/internal/survey"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// respondError maps the service layer's typed errors onto HTTP statuses so
// every handler reports failures the same way.
func respondError(c *gin.Context, err error) {
	var (
		notFound   *survey.NotFoundError
		badState   *survey.InvalidStateError
		immutable  *survey.ImmutableStructureError
		empty      *survey.EmptySurveyError
		unknown    *survey.UnknownQuestionTypeError
		completed  *survey.AlreadyCompletedError
		validation survey.ValidationErrors
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &badState), errors.As(err, &immutable), errors.As(err, &completed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &empty):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &unknown):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Answer validation failed",
			"errors": validation,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// pathID parses an ObjectID path parameter, writing the 400 itself on
// malformed input.
func pathID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid " + param,
			"details": err.Error(),
		})
		return primitive.NilObjectID, false
	}
	return id, true
}
