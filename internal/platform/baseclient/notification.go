package baseclient

import (
	"context"
	"net/http"
)

const (
	NotificationTypeSystem       = "SYSTEM"
	ReferenceTypeContractRenewal = "CONTRACT_RENEWAL"
)

type Notification struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Message       string `json:"message"`
	ResidentID    string `json:"residentId"`
	BuildingID    string `json:"buildingId,omitempty"`
	ReferenceID   string `json:"referenceId"`
	ReferenceType string `json:"referenceType"`
	ActionURL     string `json:"actionUrl,omitempty"`
}

// SendNotification delivers one notification to one resident.
func (c *Client) SendNotification(ctx context.Context, n *Notification) error {
	if n.Type == "" {
		n.Type = NotificationTypeSystem
	}
	return c.do(ctx, serviceNotification, http.MethodPost, c.notificationURL+"/api/notifications/internal", n, nil)
}
