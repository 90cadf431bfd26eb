package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/registrations"
	"github.com/venueworks/ticketing-backend/pkg/queue"
)

// CredentialIssuer processes deferred ticket credential jobs: load the
// registration, mint the token and persist it. Jobs exist only for
// registrations whose post-commit mint failed, so the common case here is a
// transient signing or persistence error that has since cleared.
type CredentialIssuer struct {
	regRepo *registrations.Repository
	service *registrations.Service
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewCredentialIssuer creates a credential issuance processor.
func NewCredentialIssuer(regRepo *registrations.Repository, service *registrations.Service, q *queue.Queue, logger *zap.Logger) *CredentialIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialIssuer{regRepo: regRepo, service: service, queue: q, logger: logger}
}

// Process executes one credential issuance job.
func (p *CredentialIssuer) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeCredentialIssue {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.CredentialIssuePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	reg, err := p.regRepo.GetByID(ctx, payload.RegistrationID)
	if err != nil {
		// Cancelled before the retry ran. Nothing to issue.
		if errors.Is(err, registrations.ErrNotFound) {
			p.logger.Info("registration gone, dropping credential job",
				zap.String("registration_id", payload.RegistrationID.String()))
			return nil
		}
		return fmt.Errorf("load registration: %w", err)
	}
	if reg.TicketToken != "" {
		p.logger.Info("credential already issued",
			zap.String("registration_id", reg.ID.String()))
		return nil
	}

	if err := p.service.MintCredential(ctx, reg); err != nil {
		return err
	}
	p.logger.Info("credential issued",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", reg.EventID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *CredentialIssuer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("credential worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
