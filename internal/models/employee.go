// internal/models/employee.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Employee mirrors the company directory entry the identity provider manages.
// The engine only reads it to resolve survey audiences; it never creates or
// authenticates accounts.
type Employee struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email string             `bson:"email" json:"email" validate:"required,email"`

	FirstName  string `bson:"first_name" json:"first_name" validate:"required,min=1,max=50"`
	LastName   string `bson:"last_name" json:"last_name" validate:"required,min=1,max=50"`
	Department string `bson:"department" json:"department"`
	JobTitle   string `bson:"job_title" json:"job_title"`
	AvatarURL  string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`

	IsAdmin  bool `bson:"is_admin" json:"is_admin"`
	IsActive bool `bson:"is_active" json:"is_active"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
