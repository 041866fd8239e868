package models

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qhomebase/contract-renewal/pkg/types"
)

func TestTableNames(t *testing.T) {
	require.Equal(t, "contract", Contract{}.TableName())
	require.Equal(t, "contract_log", ContractLog{}.TableName())
	require.Equal(t, "reminder_dispatch", ReminderDispatch{}.TableName())
	require.Equal(t, "payment_intent", PaymentIntent{}.TableName())
	require.Equal(t, "side_effect_task", SideEffectTask{}.TableName())
	require.Equal(t, "job_run", JobRun{}.TableName())
	require.Equal(t, "payment_notification_log", PaymentNotificationLog{}.TableName())
}

func TestContract_LooksLikeRenewal(t *testing.T) {
	cases := []struct {
		name string
		c    *Contract
		want bool
	}{
		{"nil", nil, false},
		{"plain original", &Contract{ContractNumber: "HD-001"}, false},
		{"explicit flag", &Contract{ContractNumber: "HD-001", IsRenewal: true}, true},
		{"parent link", &Contract{ContractNumber: "HD-001", ParentContractID: lo.ToPtr("p")}, true},
		{"legacy name marker", &Contract{ContractNumber: "HĐ-THUÊ-A101 – Gia hạn lần 2"}, true},
		{"legacy temp marker", &Contract{ContractNumber: "HD-001-RENEW-1700000000000"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.c.LooksLikeRenewal())
		})
	}
}

func TestContract_Renewed(t *testing.T) {
	c := &Contract{ContractType: types.ContractTypeRental}
	assert.False(t, c.Renewed())
	c.RenewedContractID = lo.ToPtr("")
	assert.False(t, c.Renewed())
	c.RenewedContractID = lo.ToPtr("next")
	assert.True(t, c.Renewed())
	assert.True(t, c.IsRental())
}

func TestContract_CloneIsIndependent(t *testing.T) {
	c := &Contract{ID: "a", Status: types.ContractStatusActive}
	cp := c.Clone()
	cp.Status = types.ContractStatusCancelled
	assert.Equal(t, types.ContractStatusActive, c.Status)
}
