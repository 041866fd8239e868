package contract

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

func rentalRequest(number, start, end string) *CreateRequest {
	return &CreateRequest{
		UnitID:         testUnit,
		ContractNumber: number,
		ContractType:   types.ContractTypeRental,
		StartDate:      start,
		EndDate:        end,
		MonthlyRent:    lo.ToPtr(decimal.NewFromInt(8_000_000)),
	}
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := []struct {
		name  string
		req   *CreateRequest
		field string
	}{
		{"missing unit", &CreateRequest{ContractNumber: "X", ContractType: types.ContractTypeRental, StartDate: "2025-03-01"}, "unit_id"},
		{"bad type", &CreateRequest{UnitID: testUnit, ContractNumber: "X", ContractType: "LEASE", StartDate: "2025-03-01"}, "contract_type"},
		{"bad date", rentalRequest("X", "01/03/2025", "2025-09-01"), "start_date"},
		{"rental without end", rentalRequest("X", "2025-03-01", ""), "end_date"},
		{"rental too short", rentalRequest("X", "2025-03-01", "2025-05-15"), "end_date"},
		{"rental without rent", &CreateRequest{UnitID: testUnit, ContractNumber: "X", ContractType: types.ContractTypeRental, StartDate: "2025-03-01", EndDate: "2025-09-01"}, "monthly_rent"},
		{"purchase with end", &CreateRequest{UnitID: testUnit, ContractNumber: "X", ContractType: types.ContractTypePurchase, StartDate: "2025-03-01", EndDate: "2026-03-01", PurchasePrice: lo.ToPtr(decimal.NewFromInt(1)), PurchaseDate: "2025-03-01"}, "end_date"},
		{"purchase without date", &CreateRequest{UnitID: testUnit, ContractNumber: "X", ContractType: types.ContractTypePurchase, StartDate: "2025-03-01", PurchasePrice: lo.ToPtr(decimal.NewFromInt(1))}, "purchase_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, tc.req)
			require.Error(t, err)
			var verr *errs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCreate_StatusFollowsStartDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	now, err := h.svc.Create(ctx, rentalRequest("HĐ-N1", "2025-03-01", "2025-09-01"))
	require.NoError(t, err)
	assert.Equal(t, types.ContractStatusActive, now.Status)
	assert.Equal(t, types.RenewalStatusPending, now.RenewalStatus)

	later, err := h.svc.Create(ctx, rentalRequest("HĐ-N2", "2025-04-01", "2025-10-01"))
	require.NoError(t, err)
	assert.Equal(t, types.ContractStatusInactive, later.Status)

	purchase, err := h.svc.Create(ctx, &CreateRequest{
		UnitID:         testUnit,
		ContractNumber: "HĐ-M1",
		ContractType:   types.ContractTypePurchase,
		StartDate:      "2025-02-01",
		PurchasePrice:  lo.ToPtr(decimal.NewFromInt(3_000_000_000)),
		PurchaseDate:   "2025-02-01",
	})
	require.NoError(t, err)
	assert.Nil(t, purchase.EndDate)
	assert.Equal(t, types.ContractStatusActive, purchase.Status)

	_, err = h.svc.Create(ctx, rentalRequest("HĐ-N1", "2025-03-01", "2025-09-01"))
	assert.Equal(t, errs.ReasonDuplicate, errs.ReasonOf(err))

	list, err := h.svc.ListByUnit(ctx, testUnit)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestUpdate_RenewalNumbersAreFixed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, first, _ := seedChain(t, h)
	plain := h.seed(t, &models.Contract{ContractNumber: "HĐ-P", StartDate: day(-10), EndDate: ptr(day(200))})

	_, err := h.svc.Update(ctx, first.ID, &UpdateRequest{ContractNumber: lo.ToPtr("renamed")})
	assert.Equal(t, errs.ReasonAlreadyRenewed, errs.ReasonOf(err))

	got, err := h.svc.Update(ctx, plain.ID, &UpdateRequest{ContractNumber: lo.ToPtr("HĐ-P2"), Notes: lo.ToPtr("moved in")})
	require.NoError(t, err)
	assert.Equal(t, "HĐ-P2", got.ContractNumber)
	assert.Equal(t, "moved in", got.Notes)

	_, err = h.svc.Update(ctx, plain.ID, &UpdateRequest{PurchasePrice: lo.ToPtr(decimal.NewFromInt(1))})
	assert.True(t, errs.IsValidation(err))
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	original, first, second := seedChain(t, h)

	for _, c := range []*models.Contract{original, first, second} {
		err := h.svc.Delete(ctx, c.ID)
		assert.Equal(t, errs.ReasonAlreadyRenewed, errs.ReasonOf(err), c.ContractNumber)
		assert.NotNil(t, h.get(t, c.ID))
	}

	standalone := h.seed(t, &models.Contract{StartDate: day(-30), EndDate: ptr(day(335))})
	require.NoError(t, h.svc.Delete(ctx, standalone.ID))
	_, err := h.svc.Get(ctx, standalone.ID)
	assert.True(t, errs.IsNotFound(err))
	logs := h.logs(t, standalone.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, types.ContractChangeReasonDelete, logs[0].Reason)
	assert.Nil(t, logs[0].After.Data())
}

func TestDelete_CompletedSuccessorKeepsChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.seed(t, &models.Contract{StartDate: day(-335), EndDate: ptr(day(30))})
	res, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: old.ID, StartDate: day(30), EndDate: day(30).AddDate(0, 6, 0)})
	require.NoError(t, err)
	_, err = h.svc.CompleteRenewalPayment(ctx, res.Contract.ID, testOwner, res.TxnRef)
	require.NoError(t, err)

	err = h.svc.Delete(ctx, res.Contract.ID)
	assert.Equal(t, errs.ReasonAlreadyRenewed, errs.ReasonOf(err))
	assert.NotNil(t, h.get(t, res.Contract.ID))
	linked := h.get(t, old.ID)
	require.NotNil(t, linked.RenewedContractID)
	assert.Equal(t, res.Contract.ID, *linked.RenewedContractID)
}

func TestScan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, &models.Contract{StartDate: day(-10), EndDate: ptr(day(100))})
	h.seed(t, &models.Contract{StartDate: day(-10), EndDate: ptr(day(100)), Status: types.ContractStatusExpired})
	h.seed(t, &models.Contract{UnitID: "unit-2", StartDate: day(-10), EndDate: ptr(day(100))})

	items, total, err := h.svc.Store().Scan(ctx, &ScanRequest{
		Filters: []*types.CommonFilter{
			{Field: "unit_id", Operator: types.CommonFilterOperatorEq, Values: []any{testUnit}},
			{Field: "status", Operator: types.CommonFilterOperatorIn, Values: []any{"ACTIVE"}},
		},
		Sort: []*ScanSort{{Field: "created_at", Desc: true}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, types.ContractStatusActive, items[0].Status)

	_, _, err = h.svc.Store().Scan(ctx, &ScanRequest{Filters: []*types.CommonFilter{{Field: "notes; DROP", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}}})
	assert.True(t, errs.IsValidation(err))
	_, _, err = h.svc.Store().Scan(ctx, &ScanRequest{Sort: []*ScanSort{{Field: "notes"}}})
	assert.True(t, errs.IsValidation(err))
}
