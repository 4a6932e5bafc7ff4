package worker

import (
	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/service"
)

// StartNotificationWorker subscribes the delivery channels to complaint events.
func StartNotificationWorker(notifications *service.NotificationService, logger *zap.Logger) {
	if notifications == nil {
		return
	}
	notifications.RegisterHandlers()
	if logger != nil {
		logger.Info("notification delivery registered")
	}
}
