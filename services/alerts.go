package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"carwash-ops-server/database"
	"carwash-ops-server/models"
)

// AlertRaiser records state an operator has to reconcile by hand
type AlertRaiser interface {
	RaiseAlert(ctx context.Context, kind models.AlertKind, subjectID, message string, data interface{}) (*models.OperatorAlert, error)
}

// AlertBroadcaster pushes alerts to connected staff
type AlertBroadcaster interface {
	BroadcastAlert(alert models.OperatorAlert)
}

type AlertService struct {
	alerts      AlertRepository
	broadcaster AlertBroadcaster
}

func NewAlertService(alerts AlertRepository, broadcaster AlertBroadcaster) *AlertService {
	return &AlertService{alerts: alerts, broadcaster: broadcaster}
}

func (s *AlertService) RaiseAlert(ctx context.Context, kind models.AlertKind, subjectID, message string, data interface{}) (*models.OperatorAlert, error) {
	alert := &models.OperatorAlert{
		Kind:      kind,
		SubjectID: subjectID,
		Message:   message,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode alert data: %w", err)
		}
		alert.Data = string(raw)
	}

	if err := s.alerts.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	log.Printf("🚨 Operator alert %s (%s): %s", alert.ID, alert.Kind, alert.Message)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastAlert(*alert)
	}
	return alert, nil
}

func (s *AlertService) ListAlerts(ctx context.Context, filter database.AlertFilter) ([]models.OperatorAlert, error) {
	return s.alerts.ListAlerts(ctx, filter)
}

func (s *AlertService) ResolveAlert(ctx context.Context, id string) (*models.OperatorAlert, error) {
	alert, err := s.alerts.ResolveAlert(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Operator alert %s resolved", id)
	return alert, nil
}
