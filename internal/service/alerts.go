package service

import (
	"context"
	"strings"

	"sawmill/backend/internal/domain"
)

func (s *Service) ListInventoryAlerts(ctx context.Context, acknowledged *bool, limit int) ([]domain.InventoryAlert, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListInventoryAlerts(ctx, acknowledged, limit)
}

func (s *Service) AcknowledgeInventoryAlert(ctx context.Context, id string, req domain.AcknowledgeAlertRequest) (domain.InventoryAlert, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.InventoryAlert{}, err
	}
	alert, err := s.repo.AcknowledgeInventoryAlert(ctx, id, actor.Email, strings.TrimSpace(req.ActionTaken), s.now())
	if err != nil {
		return domain.InventoryAlert{}, err
	}

	s.logAudit(ctx, "acknowledge_inventory_alert", "inventory_alert", id, "product="+alert.ProductID)
	return *alert, nil
}
