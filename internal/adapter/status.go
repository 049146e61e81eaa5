package adapter

import "github.com/genbridge/genbridge/pkg/models"

// NormalizeStatus maps heterogeneous vendor status vocabularies onto the
// task lifecycle. Unknown statuses are treated as running.
func NormalizeStatus(vendorStatus string) string {
	switch vendorStatus {
	case "failed", "error":
		return models.TaskStatusFailed
	case "succeeded", "success", "completed", "succeed":
		return models.TaskStatusSucceeded
	case "queued", "pending", "submitted":
		return models.TaskStatusQueued
	default:
		return models.TaskStatusRunning
	}
}
