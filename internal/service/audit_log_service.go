package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mautops/crm-gin/internal/model"
	"github.com/mautops/crm-gin/internal/repository"
)

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, actor string, action string, resourceType string, resourceID string, details interface{}) error
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
	}
}

type requestMetaKey struct{}

type requestMeta struct {
	requestID string
	ip        string
}

// WithRequestMeta 把请求 ID 和客户端 IP 写入 context
func WithRequestMeta(ctx context.Context, requestID, ip string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{requestID: requestID, ip: ip})
}

// GetRequestID 从 context 获取请求 ID
func GetRequestID(ctx context.Context) string {
	if m, ok := ctx.Value(requestMetaKey{}).(requestMeta); ok {
		return m.requestID
	}
	return ""
}

// GetClientIP 从 context 获取客户端 IP
func GetClientIP(ctx context.Context) string {
	if m, ok := ctx.Value(requestMetaKey{}).(requestMeta); ok {
		return m.ip
	}
	return ""
}

// RecordAction 记录操作审计日志
func (s *auditLogService) RecordAction(
	ctx context.Context,
	actor string,
	action string,
	resourceType string,
	resourceID string,
	details interface{},
) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	auditLog := &model.AuditLogModel{
		ID:           uuid.New().String(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    GetRequestID(ctx),
		IP:           GetClientIP(ctx),
		Details:      string(detailsJSON),
		CreatedAt:    utcNow(),
	}

	return s.auditRepo.Save(ctx, auditLog)
}
