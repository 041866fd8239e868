package sideeffect

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/internal/platform/baseclient"
	"github.com/qhomebase/contract-renewal/internal/platform/events"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
)

// Collaborators is the slice of the collaborator client the handlers call.
type Collaborators interface {
	GetBuildingIDForUnit(ctx context.Context, unitID string) (string, error)
	GetUnitCode(ctx context.Context, unitID string) (string, error)
	GetResidentIDsForUnit(ctx context.Context, unitID string) ([]string, error)
	ResidentIDForUser(ctx context.Context, userID string) (string, error)
	GetCurrentHousehold(ctx context.Context, unitID string) (*baseclient.Household, error)
	DeleteHousehold(ctx context.Context, householdID string) error
	SendNotification(ctx context.Context, n *baseclient.Notification) error
	CreateInvoice(ctx context.Context, inv *baseclient.Invoice) (string, error)
	CreateAssetInspection(ctx context.Context, in *baseclient.AssetInspection) error
}

type Handlers struct {
	api    Collaborators
	events events.Publisher
	log    *zap.SugaredLogger
}

func NewHandlers(api Collaborators, pub events.Publisher, log *zap.SugaredLogger) *Handlers {
	return &Handlers{api: api, events: pub, log: log}
}

// Register binds every side effect kind to its handler.
func (h *Handlers) Register(d *outbox.Dispatcher) {
	d.Register(models.SideEffectNotifyResidents, h.NotifyResidents)
	d.Register(models.SideEffectCreateInspection, h.CreateInspection)
	d.Register(models.SideEffectHouseholdTeardown, h.TeardownHousehold)
	d.Register(models.SideEffectCreateInvoice, h.CreateInvoice)
	d.Register(models.SideEffectPublishEvent, h.PublishEvent)
}

// classify stops retries of requests the collaborator rejected.
func classify(err error) error {
	if err != nil && baseclient.IsClientError(err) {
		return outbox.Permanent(err)
	}
	return err
}

func decode(task *models.SideEffectTask, dst any) error {
	if err := outbox.Decode(task, dst); err != nil {
		return outbox.Permanent(fmt.Errorf("decode %s payload: %w", task.Kind, err))
	}
	return nil
}

// reminderText returns the notification title and message for a reminder stage.
func reminderText(stage int, contractNumber string) (string, string) {
	switch stage {
	case 1:
		return "Nhắc nhở gia hạn hợp đồng",
			fmt.Sprintf("Hợp đồng %s của bạn sắp hết hạn trong vòng 1 tháng. Vui lòng gia hạn hoặc hủy hợp đồng.", contractNumber)
	case 2:
		return "Nhắc nhở gia hạn hợp đồng (Lần 2)",
			fmt.Sprintf("Hợp đồng %s của bạn sắp hết hạn. Vui lòng gia hạn hoặc hủy hợp đồng ngay.", contractNumber)
	default:
		return "Thông báo cuối cùng - Gia hạn hợp đồng",
			fmt.Sprintf("Hợp đồng %s của bạn sắp hết hạn. Bạn BẮT BUỘC phải gia hạn hoặc hủy hợp đồng ngay hôm nay.", contractNumber)
	}
}

// NotifyResidents sends the reminder to every resident of the unit. The task only
// fails when no resident could be reached, so a retry does not spam the others.
func (h *Handlers) NotifyResidents(ctx context.Context, task *models.SideEffectTask) error {
	var p NotifyResidentsPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	log := logctx.FromCtx(ctx, h.log).With("contract_id", p.ContractID, "stage", p.Stage)

	residents, err := h.api.GetResidentIDsForUnit(ctx, p.UnitID)
	if err != nil {
		return classify(err)
	}
	if len(residents) == 0 {
		log.Warnw("unit has no residents, reminder not delivered", "unit_id", p.UnitID)
		return nil
	}
	buildingID, err := h.api.GetBuildingIDForUnit(ctx, p.UnitID)
	if err != nil {
		log.Warnw("building lookup failed, sending without building", "err", err)
	}

	title, message := reminderText(p.Stage, p.ContractNumber)
	var failed []error
	for _, residentID := range residents {
		err := h.api.SendNotification(ctx, &baseclient.Notification{
			Type:          baseclient.NotificationTypeSystem,
			Title:         title,
			Message:       message,
			ResidentID:    residentID,
			BuildingID:    buildingID,
			ReferenceID:   p.ContractID,
			ReferenceType: baseclient.ReferenceTypeContractRenewal,
			ActionURL:     "/contracts/" + p.ContractID + "/renewal",
		})
		if err != nil {
			log.Warnw("reminder notification failed", "resident_id", residentID, "err", err)
			failed = append(failed, err)
		}
	}
	if len(failed) == len(residents) {
		return errors.Join(failed...)
	}
	log.Infow("reminder notifications sent", "residents", len(residents), "failed", len(failed))
	return nil
}

func (h *Handlers) CreateInspection(ctx context.Context, task *models.SideEffectTask) error {
	var p InspectionPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	return classify(h.api.CreateAssetInspection(ctx, &baseclient.AssetInspection{
		ContractID:     p.ContractID,
		UnitID:         p.UnitID,
		InspectionDate: p.InspectionDate,
		ScheduledDate:  p.ScheduledDate,
	}))
}

// TeardownHousehold removes the household living in the unit of an ended rental.
func (h *Handlers) TeardownHousehold(ctx context.Context, task *models.SideEffectTask) error {
	var p TeardownPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	log := logctx.FromCtx(ctx, h.log).With("contract_id", p.ContractID, "unit_id", p.UnitID)
	household, err := h.api.GetCurrentHousehold(ctx, p.UnitID)
	if err != nil {
		return classify(err)
	}
	if household == nil {
		log.Infow("unit has no current household")
		return nil
	}
	if err := h.api.DeleteHousehold(ctx, household.ID); err != nil {
		if errors.Is(err, baseclient.ErrNotFound) {
			return nil
		}
		return classify(err)
	}
	log.Infow("household removed", "household_id", household.ID)
	return nil
}

// CreateInvoice books the paid renewal with finance.
func (h *Handlers) CreateInvoice(ctx context.Context, task *models.SideEffectTask) error {
	var p InvoicePayload
	if err := decode(task, &p); err != nil {
		return err
	}
	if !p.Amount.IsPositive() {
		return errs.Validation("amount", "renewal invoice amount must be positive, got %s", p.Amount)
	}
	log := logctx.FromCtx(ctx, h.log).With("contract_id", p.ContractID)

	residentID := ""
	if p.PayerUserID != "" {
		id, err := h.api.ResidentIDForUser(ctx, p.PayerUserID)
		if err != nil {
			return classify(err)
		}
		residentID = id
	}
	unitCode, err := h.api.GetUnitCode(ctx, p.UnitID)
	if err != nil {
		log.Warnw("unit code lookup failed, billing without it", "err", err)
	}

	invoiceID, err := h.api.CreateInvoice(ctx, &baseclient.Invoice{
		DueDate:         p.EndDate,
		Currency:        "VND",
		BillToName:      "Cư dân - " + unitCode,
		PayerUnitID:     p.UnitID,
		PayerResidentID: residentID,
		Status:          baseclient.InvoiceStatusPaid,
		Lines: []*baseclient.InvoiceLine{{
			ServiceDate:     p.StartDate,
			Description:     fmt.Sprintf("Gia hạn hợp đồng %s từ %s đến %s", p.ContractNumber, p.StartDate, p.EndDate),
			Quantity:        decimal.NewFromInt(1),
			Unit:            "hợp đồng",
			UnitPrice:       p.Amount,
			TaxRate:         decimal.Zero,
			ServiceCode:     baseclient.ServiceCodeContractRenewal,
			ExternalRefType: baseclient.ExternalRefTypeContract,
			ExternalRefID:   p.ContractID,
		}},
	})
	if err != nil {
		return classify(err)
	}
	if invoiceID == "" {
		log.Warnw("finance returned no invoice id", "payment_ref", p.PaymentRef)
		return nil
	}
	log.Infow("renewal invoice created", "invoice_id", invoiceID, "payment_ref", p.PaymentRef)
	return nil
}

func (h *Handlers) PublishEvent(ctx context.Context, task *models.SideEffectTask) error {
	var ev events.ContractEvent
	if err := decode(task, &ev); err != nil {
		return err
	}
	return h.events.Publish(ctx, &ev)
}
