package services

import (
	"errors"
	"fmt"

	"carwash-ops-server/models"
)

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrOrderNotFound          = errors.New("order not found")
	ErrWorkerNotFound         = errors.New("worker not found")
	ErrWorkerInactive         = errors.New("worker is inactive")
	ErrWorkerRequired         = errors.New("worker id is required")
	ErrAlreadyAssigned        = errors.New("worker is already assigned to this order")
	ErrNotEffectiveWorker     = errors.New("order is not assigned to this worker")

	ErrInvalidWorkerInput     = errors.New("invalid worker input")
	ErrIdentityCreationFailed = errors.New("identity creation failed")
	ErrWorkerRecordFailed     = errors.New("worker record creation failed")
	ErrOrphanedIdentity       = errors.New("orphaned identity")

	ErrAggregationPartial = errors.New("aggregation skipped malformed records")
	ErrInvalidLocation    = errors.New("invalid location")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPrincipalExists    = errors.New("principal already exists")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrUploadUnavailable  = errors.New("document upload is not configured")
)

// TransitionError is returned by every failed order transition
type TransitionError struct {
	OrderID string
	Status  models.OrderStatus
	Trigger models.OrderTrigger
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: %s from %q: %v", e.OrderID, e.Trigger, e.Status, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// ProvisioningError reports which provisioning outcome was reached and
// whether an identity principal was left behind.
type ProvisioningError struct {
	Outcome     ProvisioningOutcome
	Email       string
	PrincipalID string
	Err         error
	RollbackErr error
}

func (e *ProvisioningError) Error() string {
	switch e.Outcome {
	case OutcomeOrphanedIdentity:
		return fmt.Sprintf("provision %s: %v; principal %s could not be deleted: %v",
			e.Email, e.Err, e.PrincipalID, e.RollbackErr)
	default:
		return fmt.Sprintf("provision %s: %s: %v", e.Email, e.Outcome, e.Err)
	}
}

func (e *ProvisioningError) Unwrap() []error {
	errs := []error{e.Outcome.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}
