package contract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/app/service/sideeffect"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

func TestOverlaps(t *testing.T) {
	jan1 := tool.Date(2025, time.January, 1)
	dec31 := tool.Date(2025, time.December, 31)
	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", tool.Date(2025, time.June, 1), tool.Date(2025, time.September, 1), true},
		{"covering", tool.Date(2024, time.June, 1), tool.Date(2026, time.June, 1), true},
		{"straddling start", tool.Date(2024, time.December, 1), tool.Date(2025, time.January, 2), true},
		{"touching end", dec31, tool.Date(2026, time.March, 31), false},
		{"touching start", tool.Date(2024, time.October, 1), jan1, false},
		{"after", tool.Date(2026, time.January, 1), tool.Date(2026, time.June, 1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.start, tc.end, jan1, dec31))
		})
	}
}

func TestBlocks_Exclusions(t *testing.T) {
	subject := &models.Contract{ID: "s", ContractNumber: "HĐ-9", ParentContractID: strPtr("p")}
	subject.RenewedContractID = strPtr("succ")
	active := func(mod func(c *models.Contract)) *models.Contract {
		c := &models.Contract{ID: "o", ContractNumber: "HĐ-1", Status: types.ContractStatusActive, StartDate: day(-10), EndDate: ptr(day(100))}
		mod(c)
		return c
	}
	cases := []struct {
		name  string
		other *models.Contract
		want  bool
	}{
		{"plain active", active(func(*models.Contract) {}), true},
		{"self", active(func(c *models.Contract) { c.ID = "s" }), false},
		{"cancelled", active(func(c *models.Contract) { c.Status = types.ContractStatusCancelled }), false},
		{"expired", active(func(c *models.Contract) { c.Status = types.ContractStatusExpired }), false},
		{"inactive", active(func(c *models.Contract) { c.Status = types.ContractStatusInactive }), false},
		{"awaiting payment", active(func(c *models.Contract) { c.AwaitingPayment = true }), false},
		{"no end", active(func(c *models.Contract) { c.EndDate = nil }), false},
		{"ended before today", active(func(c *models.Contract) { c.EndDate = ptr(day(-1)) }), false},
		{"placeholder of subject", active(func(c *models.Contract) { c.ParentContractID = strPtr("s") }), false},
		{"successor", active(func(c *models.Contract) { c.ID = "succ" }), false},
		{"predecessor", active(func(c *models.Contract) { c.ID = "p" }), false},
		{"legacy temp number", active(func(c *models.Contract) { c.ContractNumber = "HĐ-9-RENEW-1700000000000" }), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, blocks(subject, tc.other, today))
		})
	}
}

func strPtr(s string) *string { return &s }

func TestRenewContract_OverlapWithOtherActiveContract(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, &models.Contract{ContractNumber: "HĐ-A", StartDate: tool.Date(2025, time.January, 1), EndDate: ptr(tool.Date(2025, time.December, 31))})
	b := h.seed(t, &models.Contract{ContractNumber: "HĐ-B", StartDate: tool.Date(2024, time.June, 1), EndDate: ptr(tool.Date(2025, time.May, 31))})

	_, err := h.svc.RenewContract(ctx, &RenewRequest{
		ContractID: b.ID,
		StartDate:  tool.Date(2025, time.June, 1),
		EndDate:    tool.Date(2025, time.September, 1),
	})
	require.Error(t, err)
	assert.Equal(t, errs.ReasonOverlap, errs.ReasonOf(err))
	assert.Contains(t, err.Error(), "HĐ-A")
	assert.Empty(t, h.gateway.requests)

	res, err := h.svc.RenewContract(ctx, &RenewRequest{
		ContractID: b.ID,
		StartDate:  tool.Date(2025, time.December, 31),
		EndDate:    tool.Date(2026, time.March, 31),
	})
	require.NoError(t, err)
	assert.True(t, res.Contract.AwaitingPayment)
}

func TestRenewContract_StatusRules(t *testing.T) {
	cases := []struct {
		name          string
		status        types.ContractStatus
		renewalStatus types.RenewalStatus
		wantErr       errs.Reason
	}{
		{"active", types.ContractStatusActive, types.RenewalStatusPending, ""},
		{"expired with unanswered reminder", types.ContractStatusExpired, types.RenewalStatusReminded, ""},
		{"expired without reminder", types.ContractStatusExpired, types.RenewalStatusPending, errs.ReasonWrongStatus},
		{"cancelled", types.ContractStatusCancelled, types.RenewalStatusDeclined, errs.ReasonWrongStatus},
		{"inactive", types.ContractStatusInactive, types.RenewalStatusPending, errs.ReasonWrongStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			c := h.seed(t, &models.Contract{
				StartDate:     day(-365),
				EndDate:       ptr(day(-2)),
				Status:        tc.status,
				RenewalStatus: tc.renewalStatus,
			})
			res, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: c.ID, StartDate: day(-1), EndDate: day(180)})
			if tc.wantErr != "" {
				assert.Equal(t, tc.wantErr, errs.ReasonOf(err))
				assert.Empty(t, h.gateway.requests)
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Contract.AwaitingPayment)
			require.NotNil(t, res.Contract.ParentContractID)
			assert.Equal(t, c.ID, *res.Contract.ParentContractID)
		})
	}
}

func TestRenewContract_PlaceholderCannotBeRenewed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.seed(t, &models.Contract{StartDate: day(-365), EndDate: ptr(today)})
	res, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: old.ID, StartDate: today, EndDate: day(180)})
	require.NoError(t, err)
	require.Equal(t, types.ContractStatusActive, res.Contract.Status)

	_, err = h.svc.RenewContract(ctx, &RenewRequest{ContractID: res.Contract.ID, StartDate: day(180), EndDate: day(400)})
	assert.Equal(t, errs.ReasonWrongStatus, errs.ReasonOf(err))
}

func TestValidateRenewalPeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, &models.Contract{ContractNumber: "HĐ-A", StartDate: tool.Date(2025, time.January, 1), EndDate: ptr(tool.Date(2025, time.December, 31))})
	b := h.seed(t, &models.Contract{ContractNumber: "HĐ-B", StartDate: tool.Date(2024, time.June, 1), EndDate: ptr(tool.Date(2025, time.May, 31))})
	declined := h.seed(t, &models.Contract{StartDate: day(-300), EndDate: ptr(day(60)), Status: types.ContractStatusCancelled})

	cases := []struct {
		name       string
		id         string
		start, end time.Time
		want       errs.Reason
	}{
		{"overlap", b.ID, tool.Date(2025, time.June, 1), tool.Date(2025, time.September, 1), errs.ReasonOverlap},
		{"too short", b.ID, tool.Date(2026, time.January, 1), tool.Date(2026, time.February, 1), errs.ReasonDateRule},
		{"not renewable", declined.ID, day(60), day(300), errs.ReasonWrongStatus},
		{"accepted", b.ID, tool.Date(2025, time.December, 31), tool.Date(2026, time.March, 31), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.svc.ValidateRenewalPeriod(ctx, tc.id, tc.start, tc.end)
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tc.want, errs.ReasonOf(err))
		})
	}

	var placeholders int64
	require.NoError(t, h.db.Model(&models.Contract{}).Where("awaiting_payment = ?", true).Count(&placeholders).Error)
	assert.Zero(t, placeholders)
	assert.Empty(t, h.gateway.requests)
}

func TestRenewContract_DateRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.seed(t, &models.Contract{StartDate: day(-300), EndDate: ptr(day(30))})

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{"end before start", day(60), day(30)},
		{"same day", day(30), day(30)},
		{"two months", tool.Date(2025, time.April, 1), tool.Date(2025, time.June, 30)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: c.ID, StartDate: tc.start, EndDate: tc.end})
			assert.Equal(t, errs.ReasonDateRule, errs.ReasonOf(err))
		})
	}

	_, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: c.ID, StartDate: day(30), EndDate: day(400), ActingUser: "stranger"})
	assert.True(t, errs.IsPermission(err))
}

func TestRenewAndComplete_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.seed(t, &models.Contract{ContractNumber: "HĐ-001", StartDate: tool.Date(2024, time.April, 1), EndDate: ptr(tool.Date(2025, time.March, 31))})

	res, err := h.svc.RenewContract(ctx, &RenewRequest{
		ContractID: old.ID,
		StartDate:  tool.Date(2025, time.March, 31),
		EndDate:    tool.Date(2026, time.March, 31),
		ActingUser: testOwner,
		ClientIP:   "10.0.0.1",
	})
	require.NoError(t, err)
	placeholder := res.Contract
	assert.True(t, strings.HasPrefix(placeholder.ContractNumber, "HĐ-001-RENEW-"))
	assert.Equal(t, types.ContractStatusInactive, placeholder.Status)
	assert.True(t, placeholder.AwaitingPayment)
	assert.True(t, placeholder.IsRenewal)
	require.NotNil(t, placeholder.ParentContractID)
	assert.Equal(t, old.ID, *placeholder.ParentContractID)
	assert.True(t, decimal.NewFromInt(120_000_000).Equal(res.Amount))
	assert.Contains(t, res.PaymentURL, res.TxnRef)

	require.Len(t, h.gateway.requests, 1)
	req := h.gateway.requests[0]
	assert.Len(t, req.OrderID, 32)
	assert.Equal(t, "Gia hạn hợp đồng HĐ-001 - ContractId:"+placeholder.ID, req.Description)
	assert.Equal(t, "10.0.0.1", req.ClientIP)

	var intent models.PaymentIntent
	require.NoError(t, h.db.Where("txn_ref = ?", res.TxnRef).First(&intent).Error)
	assert.Equal(t, types.PaymentIntentStatusPending, intent.Status)
	assert.Equal(t, old.ID, intent.PredecessorContractID)

	// The old contract is untouched until payment completes.
	assert.False(t, h.get(t, old.ID).Renewed())

	done, err := h.svc.CompleteRenewalPayment(ctx, placeholder.ID, testOwner, res.TxnRef)
	require.NoError(t, err)
	assert.Equal(t, "HĐ-THUÊ-A-101 – Gia hạn lần 1", done.ContractNumber)
	assert.False(t, done.AwaitingPayment)
	assert.Equal(t, types.ContractStatusInactive, done.Status)

	linked := h.get(t, old.ID)
	require.NotNil(t, linked.RenewedContractID)
	assert.Equal(t, placeholder.ID, *linked.RenewedContractID)

	require.NoError(t, h.db.Where("txn_ref = ?", res.TxnRef).First(&intent).Error)
	assert.Equal(t, types.PaymentIntentStatusPaid, intent.Status)

	invoices := h.tasks(t, placeholder.ID, models.SideEffectCreateInvoice)
	require.Len(t, invoices, 1)
	var inv sideeffect.InvoicePayload
	require.NoError(t, outbox.Decode(invoices[0], &inv))
	assert.True(t, decimal.NewFromInt(120_000_000).Equal(inv.Amount))
	assert.Equal(t, res.TxnRef, inv.PaymentRef)
	assert.Equal(t, testOwner, inv.PayerUserID)

	// Replaying the callback changes nothing.
	logsBefore := len(h.logs(t, placeholder.ID))
	again, err := h.svc.CompleteRenewalPayment(ctx, placeholder.ID, testOwner, res.TxnRef)
	require.NoError(t, err)
	assert.Equal(t, done.ContractNumber, again.ContractNumber)
	assert.Equal(t, done.Version, again.Version)
	assert.Len(t, h.logs(t, placeholder.ID), logsBefore)

	// A renewed contract cannot be renewed again.
	_, err = h.svc.RenewContract(ctx, &RenewRequest{ContractID: old.ID, StartDate: day(30), EndDate: day(400)})
	assert.Equal(t, errs.ReasonAlreadyRenewed, errs.ReasonOf(err))
}

func TestCompleteRenewalPayment_SecondPlaceholderLoses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.seed(t, &models.Contract{ContractNumber: "HĐ-002", StartDate: tool.Date(2024, time.April, 1), EndDate: ptr(tool.Date(2025, time.March, 31))})
	req := &RenewRequest{ContractID: old.ID, StartDate: tool.Date(2025, time.March, 31), EndDate: tool.Date(2025, time.September, 30)}

	first, err := h.svc.RenewContract(ctx, req)
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	second, err := h.svc.RenewContract(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Contract.ContractNumber, second.Contract.ContractNumber)

	_, err = h.svc.CompleteRenewalPayment(ctx, first.Contract.ID, "", first.TxnRef)
	require.NoError(t, err)

	_, err = h.svc.CompleteRenewalPayment(ctx, second.Contract.ID, "", second.TxnRef)
	require.Error(t, err)
	assert.Equal(t, errs.ReasonAlreadyRenewed, errs.ReasonOf(err))
	assert.True(t, h.get(t, second.Contract.ID).AwaitingPayment)
}

func TestCompleteRenewalPayment_RejectsNonRenewal(t *testing.T) {
	h := newHarness(t)
	c := h.seed(t, &models.Contract{StartDate: day(-10), EndDate: ptr(day(200))})
	_, err := h.svc.CompleteRenewalPayment(context.Background(), c.ID, "", "")
	assert.Equal(t, errs.ReasonWrongType, errs.ReasonOf(err))
}

// seedChain builds original -> renewal 1 -> renewal 2 on testUnit.
func seedChain(t *testing.T, h *harness) (original, first, second *models.Contract) {
	original = &models.Contract{ID: tool.GenerateUUIDV7(), ContractNumber: "HĐ-100", Status: types.ContractStatusExpired, StartDate: tool.Date(2023, time.January, 1), EndDate: ptr(tool.Date(2023, time.December, 31))}
	first = &models.Contract{ID: tool.GenerateUUIDV7(), ContractNumber: "HĐ-THUÊ-A-101 – Gia hạn lần 1", Status: types.ContractStatusExpired, StartDate: tool.Date(2023, time.December, 31), EndDate: ptr(tool.Date(2024, time.December, 31)), IsRenewal: true}
	second = &models.Contract{ID: tool.GenerateUUIDV7(), ContractNumber: "HĐ-THUÊ-A-101 – Gia hạn lần 2", StartDate: tool.Date(2024, time.December, 31), EndDate: ptr(tool.Date(2025, time.June, 30)), IsRenewal: true}
	original.RenewedContractID = &first.ID
	first.ParentContractID = &original.ID
	first.RenewedContractID = &second.ID
	second.ParentContractID = &first.ID
	h.seed(t, original)
	h.seed(t, first)
	h.seed(t, second)
	return original, first, second
}

func TestCountRenewalSequence_Chain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	original, first, second := seedChain(t, h)
	st := h.svc.Store()

	for _, tc := range []struct {
		c    *models.Contract
		want int
	}{{original, 0}, {first, 1}, {second, 2}} {
		n, err := CountRenewalSequence(ctx, st, tc.c)
		require.NoError(t, err)
		assert.Equal(t, tc.want, n, tc.c.ContractNumber)

		root, err := FindOriginalContract(ctx, st, tc.c)
		require.NoError(t, err)
		assert.Equal(t, original.ID, root.ID)
	}
}

func TestRenewalNumber_ThirdRenewal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, second := seedChain(t, h)

	res, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: second.ID, StartDate: tool.Date(2025, time.June, 30), EndDate: tool.Date(2025, time.December, 31)})
	require.NoError(t, err)

	// Asking for the number twice before completion gives the same answer.
	st := h.svc.Store()
	n1, err := h.svc.nextRenewalNumber(ctx, st, second, res.Contract, "A-101")
	require.NoError(t, err)
	n2, err := h.svc.nextRenewalNumber(ctx, st, second, res.Contract, "A-101")
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Equal(t, "HĐ-THUÊ-A-101 – Gia hạn lần 3", n1)

	done, err := h.svc.CompleteRenewalPayment(ctx, res.Contract.ID, "", res.TxnRef)
	require.NoError(t, err)
	assert.Equal(t, "HĐ-THUÊ-A-101 – Gia hạn lần 3", done.ContractNumber)
}

func TestRenewalNumber_SkipsTakenNumbers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.seed(t, &models.Contract{ContractNumber: "HĐ-200", StartDate: day(-300), EndDate: ptr(day(60))})
	// Another unit already uses the first number with the same code.
	h.seed(t, &models.Contract{UnitID: "unit-2", ContractNumber: "HĐ-THUÊ-A-101 – Gia hạn lần 1", StartDate: day(-10), EndDate: ptr(day(100))})

	res, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: old.ID, StartDate: day(60), EndDate: day(250)})
	require.NoError(t, err)
	done, err := h.svc.CompleteRenewalPayment(ctx, res.Contract.ID, "", res.TxnRef)
	require.NoError(t, err)
	assert.Equal(t, "HĐ-THUÊ-A-101 – Gia hạn lần 2", done.ContractNumber)
}

func TestRenewalNumber_UnitServiceDown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	delete(h.units.codes, testUnit)
	old := h.seed(t, &models.Contract{ContractNumber: "HĐ-300", StartDate: day(-300), EndDate: ptr(day(60))})

	res, err := h.svc.RenewContract(ctx, &RenewRequest{ContractID: old.ID, StartDate: day(60), EndDate: day(250)})
	require.NoError(t, err)
	done, err := h.svc.CompleteRenewalPayment(ctx, res.Contract.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "HĐ-THUÊ-N/A – Gia hạn lần 1", done.ContractNumber)
}

func TestFindOriginalContract_LegacyMarkers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	original := h.seed(t, &models.Contract{ContractNumber: "HĐ-400", Status: types.ContractStatusExpired, StartDate: tool.Date(2023, time.January, 1), EndDate: ptr(tool.Date(2023, time.December, 31))})
	legacy := h.seed(t, &models.Contract{ContractNumber: "HĐ-THUÊ-A-101 – Gia hạn lần 1", StartDate: tool.Date(2023, time.December, 31), EndDate: ptr(tool.Date(2024, time.December, 31))})

	root, err := FindOriginalContract(ctx, h.svc.Store(), legacy)
	require.NoError(t, err)
	assert.Equal(t, original.ID, root.ID)
}
