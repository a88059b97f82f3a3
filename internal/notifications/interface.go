package notifications

import "github.com/azure/danmaku-digest-bot/internal/models"

// NotificationInterface defines the contract for delivering analysis results
type NotificationInterface interface {
	SendReport(report *models.Report) error
	SendAlert(alert *models.Alert) error
}
