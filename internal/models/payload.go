package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// GenerationOptions selects the optional pipeline stages and target model
type GenerationOptions struct {
	TargetLength     int    `json:"target_length" validate:"omitempty,min=100,max=20000"` // Desired post length in words (0 = provider default)
	GenerateImage    bool   `json:"generate_image"`                                       // Run the secondary-asset (hero image) stage
	GenerateMetadata bool   `json:"generate_metadata"`                                    // Run the metadata stage
	Model            string `json:"model,omitempty"`                                      // Provider/model selector, e.g. "claude" or a full model id (empty = default)
}

// Submission is the payload accepted from a client to enqueue a job
type Submission struct {
	Content   string            `json:"content" validate:"required,min=3,max=50000"`
	Options   GenerationOptions `json:"options"`
	CreatedBy string            `json:"created_by" validate:"required"`
}

var validate = validator.New()

// Validate rejects malformed submissions before any job is created
func (s *Submission) Validate() error {
	if err := validate.Struct(s); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid field %s: failed %s validation", e.Field(), e.Tag())
		}
		return err
	}
	return nil
}
