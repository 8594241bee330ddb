package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
)

// ProvisioningOutcome names where a provisioning attempt ended
type ProvisioningOutcome string

const (
	OutcomeProvisioned      ProvisioningOutcome = "provisioned"
	OutcomeInvalidInput     ProvisioningOutcome = "invalid_input"
	OutcomeIdentityFailed   ProvisioningOutcome = "identity_failed"
	OutcomeRolledBack       ProvisioningOutcome = "rolled_back"
	OutcomeOrphanedIdentity ProvisioningOutcome = "orphaned_identity"
)

func (o ProvisioningOutcome) sentinel() error {
	switch o {
	case OutcomeInvalidInput:
		return ErrInvalidWorkerInput
	case OutcomeIdentityFailed:
		return ErrIdentityCreationFailed
	case OutcomeRolledBack:
		return ErrWorkerRecordFailed
	case OutcomeOrphanedIdentity:
		return ErrOrphanedIdentity
	default:
		return nil
	}
}

// rollbackTimeout bounds the compensating delete once the request is gone
const rollbackTimeout = 15 * time.Second

// DocumentUploader stores a worker identity document and returns its URL
type DocumentUploader interface {
	UploadIdentityDocument(ctx context.Context, workerID, filename string, file io.Reader) (string, error)
}

// WorkerProvisioningService creates a worker in two steps: an identity
// principal first, then the worker row. A failed row insert deletes the
// principal again; if that delete fails too an operator alert is raised.
type WorkerProvisioningService struct {
	identity        IdentityProvider
	workers         WorkerRepository
	alerts          AlertRaiser
	uploader        DocumentUploader
	defaultPassword string
	validate        *validator.Validate
}

func NewWorkerProvisioningService(identity IdentityProvider, workers WorkerRepository, alerts AlertRaiser, uploader DocumentUploader, defaultPassword string) *WorkerProvisioningService {
	return &WorkerProvisioningService{
		identity:        identity,
		workers:         workers,
		alerts:          alerts,
		uploader:        uploader,
		defaultPassword: defaultPassword,
		validate:        validator.New(),
	}
}

type ProvisioningResult struct {
	Outcome ProvisioningOutcome `json:"outcome"`
	Worker  *models.Worker      `json:"worker"`
}

// ProvisionWorker runs the workflow. Every failure is a *ProvisioningError.
func (s *WorkerProvisioningService) ProvisionWorker(ctx context.Context, req models.ProvisionWorkerRequest) (*ProvisioningResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)

	if err := s.validate.Struct(req); err != nil {
		return nil, &ProvisioningError{Outcome: OutcomeInvalidInput, Email: req.Email, Err: describeValidation(err)}
	}

	password := req.Password
	if password == "" {
		password = s.defaultPassword
	}

	// Step 1: identity principal
	principal, err := s.identity.CreatePrincipal(ctx, req.Email, password, models.RoleMetadata{
		Role: models.RoleWorker,
		Name: req.Name,
	})
	if err != nil {
		log.Printf("❌ Identity creation failed for %s: %v", req.Email, err)
		return nil, &ProvisioningError{Outcome: OutcomeIdentityFailed, Email: req.Email, Err: err}
	}

	// Step 2: worker row bound to the principal
	worker := &models.Worker{
		PrincipalID:   principal.ID,
		Name:          req.Name,
		Phone:         req.Phone,
		Email:         req.Email,
		Experience:    req.Experience,
		Rating:        0,
		IsActive:      true,
		IDDocumentURL: req.IDDocumentURL,
	}
	if err := s.workers.InsertWorker(ctx, worker); err != nil {
		log.Printf("❌ Worker record failed for %s, rolling back principal %s: %v", req.Email, principal.ID, err)
		return nil, s.rollback(ctx, req.Email, principal.ID, err)
	}

	log.Printf("✅ Worker %s provisioned for principal %s", worker.ID, principal.ID)
	return &ProvisioningResult{Outcome: OutcomeProvisioned, Worker: worker}, nil
}

// rollback deletes the principal created in step 1. The delete runs on a
// context detached from the request so a client disconnect cannot skip it.
func (s *WorkerProvisioningService) rollback(ctx context.Context, email, principalID string, cause error) error {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	deleteErr := s.identity.DeletePrincipal(rbCtx, principalID)
	if deleteErr == nil {
		return &ProvisioningError{Outcome: OutcomeRolledBack, Email: email, Err: cause}
	}

	log.Printf("❌ Rollback failed, principal %s is orphaned: %v", principalID, deleteErr)
	provErr := &ProvisioningError{
		Outcome:     OutcomeOrphanedIdentity,
		Email:       email,
		PrincipalID: principalID,
		Err:         cause,
		RollbackErr: deleteErr,
	}

	if s.alerts != nil {
		_, alertErr := s.alerts.RaiseAlert(rbCtx, models.AlertOrphanedIdentity, principalID,
			fmt.Sprintf("Principal %s (%s) has no worker record and could not be deleted", principalID, email),
			map[string]string{
				"email":          email,
				"principal_id":   principalID,
				"insert_error":   cause.Error(),
				"rollback_error": deleteErr.Error(),
			})
		if alertErr != nil {
			log.Printf("❌ Failed to raise orphaned identity alert for %s: %v", principalID, alertErr)
		}
	}
	return provErr
}

func (s *WorkerProvisioningService) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	return s.workers.ListWorkers(ctx)
}

func (s *WorkerProvisioningService) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	worker, err := s.workers.FindWorker(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrWorkerNotFound
	}
	return worker, err
}

// WorkerForPrincipal resolves the worker bound to an identity principal
func (s *WorkerProvisioningService) WorkerForPrincipal(ctx context.Context, principalID string) (*models.Worker, error) {
	worker, err := s.workers.FindWorkerByPrincipal(ctx, principalID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrWorkerNotFound
	}
	return worker, err
}

// SetWorkerActive toggles whether the worker can receive new assignments
func (s *WorkerProvisioningService) SetWorkerActive(ctx context.Context, id string, active bool) (*models.Worker, error) {
	worker, err := s.workers.SetWorkerActive(ctx, id, active)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	log.Printf("👷 Worker %s active=%v", id, active)
	return worker, nil
}

// AttachIdentityDocument uploads the document and stores its URL on the worker
func (s *WorkerProvisioningService) AttachIdentityDocument(ctx context.Context, workerID, filename string, file io.Reader) (*models.Worker, error) {
	if s.uploader == nil {
		return nil, ErrUploadUnavailable
	}
	if _, err := s.GetWorker(ctx, workerID); err != nil {
		return nil, err
	}

	url, err := s.uploader.UploadIdentityDocument(ctx, workerID, filename, file)
	if err != nil {
		return nil, fmt.Errorf("upload identity document: %w", err)
	}

	worker, err := s.workers.SetWorkerDocument(ctx, workerID, url)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrWorkerNotFound
	}
	return worker, err
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
