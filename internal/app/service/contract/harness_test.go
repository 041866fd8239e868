package contract

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/internal/platform/db/dbtest"
	"github.com/qhomebase/contract-renewal/internal/platform/vnpay"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

const (
	testUnit  = "unit-1"
	testOwner = "user-owner"
)

var today = tool.Date(2025, time.March, 1)

func day(n int) time.Time { return today.AddDate(0, 0, n) }

func ptr(t time.Time) *time.Time { return &t }

type fakeUnits struct {
	owners map[string]string
	codes  map[string]string
	err    error
}

func (f *fakeUnits) IsOwnerOfUnit(_ context.Context, userID, unitID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.owners[unitID] == userID, nil
}

func (f *fakeUnits) GetUnitCode(_ context.Context, unitID string) (string, error) {
	code, ok := f.codes[unitID]
	if !ok {
		return "", errors.New("base-service unavailable")
	}
	return code, nil
}

type fakeGateway struct {
	requests []*vnpay.PaymentRequest
}

func (g *fakeGateway) CreatePaymentURL(_ context.Context, req *vnpay.PaymentRequest) (*vnpay.PaymentURL, error) {
	g.requests = append(g.requests, req)
	ref := fmt.Sprintf("%s_%d", req.OrderID, req.CreatedAt.UnixMilli())
	return &vnpay.PaymentURL{URL: "https://pay.test/vpcpay.html?vnp_TxnRef=" + ref, TxnRef: ref}, nil
}

type harness struct {
	svc     *Service
	db      *gorm.DB
	clock   *tool.FixedClock
	units   *fakeUnits
	gateway *fakeGateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb := dbtest.Open(t)
	clock := tool.NewFixedClock(today.Add(8*time.Hour), time.UTC)
	log := zap.NewNop().Sugar()
	units := &fakeUnits{
		owners: map[string]string{testUnit: testOwner},
		codes:  map[string]string{testUnit: "A-101"},
	}
	gw := &fakeGateway{}
	cfg := &config.Config{}
	cfg.Payment.VNPay.ReturnURL = "http://localhost/callback"
	svc := NewService(cfg, gdb, log, clock, units, gw, outbox.NewService(gdb, clock, log), nil)
	return &harness{svc: svc, db: gdb, clock: clock, units: units, gateway: gw}
}

// seed inserts c with rental defaults filled in.
func (h *harness) seed(t *testing.T, c *models.Contract) *models.Contract {
	t.Helper()
	if c.ID == "" {
		c.ID = tool.GenerateUUIDV7()
	}
	if c.UnitID == "" {
		c.UnitID = testUnit
	}
	if c.ContractNumber == "" {
		c.ContractNumber = "HĐ-" + c.ID
	}
	if c.ContractType == "" {
		c.ContractType = types.ContractTypeRental
	}
	if c.Status == "" {
		c.Status = types.ContractStatusActive
	}
	if c.RenewalStatus == "" {
		c.RenewalStatus = types.RenewalStatusPending
	}
	if c.ContractType == types.ContractTypeRental && c.MonthlyRent == nil {
		c.MonthlyRent = lo.ToPtr(decimal.NewFromInt(10_000_000))
	}
	if c.Version == 0 {
		c.Version = 1
	}
	require.NoError(t, h.db.Create(c).Error)
	return c
}

func (h *harness) get(t *testing.T, id string) *models.Contract {
	t.Helper()
	c, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) tasks(t *testing.T, contractID string, kind models.SideEffectKind) []*models.SideEffectTask {
	t.Helper()
	var out []*models.SideEffectTask
	require.NoError(t, h.db.Where("contract_id = ? AND kind = ?", contractID, kind).Order("created_at, id").Find(&out).Error)
	return out
}

func (h *harness) logs(t *testing.T, contractID string) []*models.ContractLog {
	t.Helper()
	var out []*models.ContractLog
	require.NoError(t, h.db.Where("contract_id = ?", contractID).Order("id").Find(&out).Error)
	return out
}
