// Package sideeffect turns outbox tasks into calls to collaborator services.
package sideeffect

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/internal/platform/events"
)

// DateLayout is the wire format of calendar dates in payloads and collaborator requests.
const DateLayout = "2006-01-02"

type NotifyResidentsPayload struct {
	ContractID     string `json:"contract_id"`
	ContractNumber string `json:"contract_number"`
	UnitID         string `json:"unit_id"`
	Stage          int    `json:"stage"`
	EndDate        string `json:"end_date"`
}

type InspectionPayload struct {
	ContractID     string  `json:"contract_id"`
	UnitID         string  `json:"unit_id"`
	InspectionDate string  `json:"inspection_date"`
	ScheduledDate  *string `json:"scheduled_date,omitempty"`
}

type TeardownPayload struct {
	ContractID string `json:"contract_id"`
	UnitID     string `json:"unit_id"`
}

type InvoicePayload struct {
	ContractID     string          `json:"contract_id"`
	UnitID         string          `json:"unit_id"`
	PayerUserID    string          `json:"payer_user_id"`
	ContractNumber string          `json:"contract_number"`
	Amount         decimal.Decimal `json:"amount"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	PaymentRef     string          `json:"payment_ref"`
}

func formatDate(t time.Time) string { return t.Format(DateLayout) }

// NotifyResidentsTask fans a reminder stage out to every resident of the unit.
func NotifyResidentsTask(c *models.Contract, stage int) outbox.Task {
	end := ""
	if c.EndDate != nil {
		end = formatDate(*c.EndDate)
	}
	return outbox.Task{
		Kind:       models.SideEffectNotifyResidents,
		DedupKey:   fmt.Sprintf("notify:%s:%s:%d", c.ID, end, stage),
		ContractID: c.ID,
		Payload: &NotifyResidentsPayload{
			ContractID:     c.ID,
			ContractNumber: c.ContractNumber,
			UnitID:         c.UnitID,
			Stage:          stage,
			EndDate:        end,
		},
	}
}

func InspectionTask(c *models.Contract, inspectionDate time.Time, scheduled *time.Time) outbox.Task {
	p := &InspectionPayload{
		ContractID:     c.ID,
		UnitID:         c.UnitID,
		InspectionDate: formatDate(inspectionDate),
	}
	if scheduled != nil {
		s := formatDate(*scheduled)
		p.ScheduledDate = &s
	}
	return outbox.Task{
		Kind:       models.SideEffectCreateInspection,
		DedupKey:   "inspection:" + c.ID,
		ContractID: c.ID,
		Payload:    p,
	}
}

func TeardownTask(c *models.Contract) outbox.Task {
	return outbox.Task{
		Kind:       models.SideEffectHouseholdTeardown,
		DedupKey:   "teardown:" + c.ID,
		ContractID: c.ID,
		Payload:    &TeardownPayload{ContractID: c.ID, UnitID: c.UnitID},
	}
}

func InvoiceTask(c *models.Contract, payerUserID string, amount decimal.Decimal, paymentRef string) outbox.Task {
	p := &InvoicePayload{
		ContractID:     c.ID,
		UnitID:         c.UnitID,
		PayerUserID:    payerUserID,
		ContractNumber: c.ContractNumber,
		Amount:         amount,
		StartDate:      formatDate(c.StartDate),
		PaymentRef:     paymentRef,
	}
	if c.EndDate != nil {
		p.EndDate = formatDate(*c.EndDate)
	}
	return outbox.Task{
		Kind:       models.SideEffectCreateInvoice,
		DedupKey:   "invoice:" + c.ID,
		ContractID: c.ID,
		Payload:    p,
	}
}

// EventTask publishes the state of c after a change. Versions make the key unique per change.
func EventTask(c *models.Contract, eventType, actor string, at time.Time) outbox.Task {
	return outbox.Task{
		Kind:       models.SideEffectPublishEvent,
		DedupKey:   fmt.Sprintf("event:%s:v%d", c.ID, c.Version),
		ContractID: c.ID,
		Payload: &events.ContractEvent{
			EventID:        fmt.Sprintf("%s:v%d", c.ID, c.Version),
			Type:           eventType,
			ContractID:     c.ID,
			ContractNumber: c.ContractNumber,
			UnitID:         c.UnitID,
			Status:         string(c.Status),
			RenewalStatus:  string(c.RenewalStatus),
			Actor:          actor,
			OccurredAt:     at,
		},
	}
}
