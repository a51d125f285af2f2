package service

import (
	"log"

	"github.com/google/uuid"
	"github.com/kubeharbor/kubeharbor/internal/model"
	"github.com/kubeharbor/kubeharbor/internal/repository"
)

type AuditService struct {
	auditRepo *repository.AuditRepository
}

func NewAuditService(auditRepo *repository.AuditRepository) *AuditService {
	return &AuditService{auditRepo: auditRepo}
}

// Log 审计只记录不阻断，写失败仅打日志
func (s *AuditService) Log(clusterID *uuid.UUID, action, resource, actor string, detail model.JSONMap) {
	event := &model.AuditEvent{
		ClusterID: clusterID,
		Action:    action,
		Resource:  resource,
		Actor:     actor,
		Detail:    detail,
	}

	if err := s.auditRepo.Create(event); err != nil {
		log.Printf("[AUDIT] Failed to record %s on %s: %v", action, resource, err)
	}
}

func (s *AuditService) List(clusterID string, page, limit int) ([]*model.AuditEvent, int64, error) {
	return s.auditRepo.List(clusterID, page, limit)
}
