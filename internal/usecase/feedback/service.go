// Package feedback records quote verdicts and suggests calibration steps.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/donizo/pricing-engine/internal/domain"
	repo "github.com/donizo/pricing-engine/internal/repository/feedback"
)

// Submission is one verdict on a generated quote.
type Submission struct {
	TaskID          string
	QuoteID         string
	UserType        string
	Verdict         string
	Comment         string
	TargetComponent string
}

// Receipt acknowledges a stored submission with the calibration steps the
// verdict suggests.
type Receipt struct {
	ID             string
	AdaptationPlan []string
}

// Recorder persists feedback records.
type Recorder interface {
	Save(ctx context.Context, rec repo.Record) error
}

// Service validates, stores and interprets feedback.
type Service struct {
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a feedback service.
func New(recorder Recorder, logger *zap.Logger) *Service {
	return &Service{recorder: recorder, logger: logger, now: time.Now}
}

// Submit stores the submission and returns its adaptation plan.
func (s *Service) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if sub.TaskID == "" || sub.QuoteID == "" || sub.UserType == "" || sub.Verdict == "" {
		return Receipt{}, fmt.Errorf("task_id, quote_id, user_type and verdict are required: %w",
			domain.ErrInvalidFilter)
	}

	rec := repo.Record{
		ID:              uuid.NewString(),
		TaskID:          sub.TaskID,
		QuoteID:         sub.QuoteID,
		UserType:        sub.UserType,
		Verdict:         sub.Verdict,
		Comment:         sub.Comment,
		TargetComponent: sub.TargetComponent,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.recorder.Save(ctx, rec); err != nil {
		return Receipt{}, fmt.Errorf("save feedback: %w", err)
	}

	s.logger.Info("feedback recorded",
		zap.String("feedback_id", rec.ID),
		zap.String("quote_id", rec.QuoteID),
		zap.String("verdict", rec.Verdict))

	return Receipt{ID: rec.ID, AdaptationPlan: adaptationNotes(sub)}, nil
}

// adaptationNotes maps a verdict onto concrete calibration steps for the
// pricing model. Rules are cumulative.
func adaptationNotes(sub Submission) []string {
	var notes []string
	verdict := strings.ToLower(sub.Verdict)
	target := strings.ToLower(sub.TargetComponent)

	if strings.Contains(verdict, "overpriced") || target == "materials" {
		notes = append(notes, "Decrease regional price multiplier slightly for similar materials in this city (learning rate 0.02).")
	}
	if target == "labor" {
		notes = append(notes, "Recalibrate labor hours for this task label based on moving average of accepted quotes.")
	}
	if target == "vat" {
		notes = append(notes, "Verify VAT inference (renovation vs new build) next time.")
	}
	if strings.ToLower(sub.UserType) == "contractor" {
		notes = append(notes, "Weight contractor feedback higher and lower confidence if repeated rejections occur.")
	}
	return notes
}
