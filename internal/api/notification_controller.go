package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/crm-gin/internal/service"
)

// NotificationController 通知控制器
type NotificationController struct {
	notifications service.NotificationService
}

// NewNotificationController 创建通知控制器
func NewNotificationController(notifications service.NotificationService) *NotificationController {
	return &NotificationController{notifications: notifications}
}

// List 最近的通知和未读数
func (n *NotificationController) List(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	list, err := n.notifications.List(c.Request.Context(), p)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, list)
}

// UnreadCount 未读数
func (n *NotificationController) UnreadCount(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	count, err := n.notifications.UnreadCount(c.Request.Context(), p)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"unread_count": count})
}

// MarkRead 标记单条已读
func (n *NotificationController) MarkRead(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := n.notifications.MarkRead(c.Request.Context(), p, id); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, nil)
}

// MarkAllRead 标记全部已读
func (n *NotificationController) MarkAllRead(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	updated, err := n.notifications.MarkAllRead(c.Request.Context(), p)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, gin.H{"updated": updated})
}
