package service

import (
	"context"

	"github.com/mautops/crm-gin/internal/repository"
)

// ClientDirectory 客户目录, 仅用于展示客户名称
type ClientDirectory interface {
	LookupNames(ctx context.Context, ids []string) (map[string]string, error)
}

type clientDirectory struct {
	clients repository.ClientRepository
}

// NewClientDirectory 基于 clients 表的客户目录
func NewClientDirectory(clients repository.ClientRepository) ClientDirectory {
	return &clientDirectory{clients: clients}
}

func (d *clientDirectory) LookupNames(ctx context.Context, ids []string) (map[string]string, error) {
	return d.clients.FindNames(ctx, ids)
}
