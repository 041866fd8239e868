package baseclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/errs"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&config.Config{Clients: config.ClientsConfig{
		BaseServiceURL:         srv.URL,
		NotificationServiceURL: srv.URL,
		FinanceServiceURL:      srv.URL,
		AssetServiceURL:        srv.URL,
		Timeout:                time.Second,
		Retries:                2,
	}}, zap.NewNop().Sugar())
}

func householdMux(kind, primary, residentOfUser string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/households/units/u1/current", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"h1","unitId":"u1","kind":"`+kind+`","primaryResidentId":"`+primary+`"}`)
	})
	mux.HandleFunc("/api/residents/by-user/user1", func(w http.ResponseWriter, r *http.Request) {
		if residentOfUser == "" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"id":"`+residentOfUser+`"}`)
	})
	mux.HandleFunc("/api/household-members/households/h1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"residentId":"r1"},{"residentId":"r2"},{"residentId":"r3"}]`)
	})
	mux.HandleFunc("/api/units/u1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"u1","code":"A-101","building":{"id":"b1"}}`)
	})
	return mux
}

func TestIsOwnerOfUnit(t *testing.T) {
	cases := []struct {
		name      string
		kind      string
		primary   string
		residents string
		want      bool
	}{
		{"owner primary resident", HouseholdKindOwner, "r1", "r1", true},
		{"tenant primary resident", HouseholdKindTenant, "r1", "r1", true},
		{"household member", HouseholdKindOwner, "r1", "r2", false},
		{"other household kind", "GUEST", "r1", "r1", false},
		{"no primary resident", HouseholdKindOwner, "", "r1", false},
		{"user without resident", HouseholdKindOwner, "r1", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, householdMux(tc.kind, tc.primary, tc.residents))
			got, err := c.IsOwnerOfUnit(context.Background(), "user1", "u1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUnitLookups(t *testing.T) {
	c := newTestClient(t, householdMux(HouseholdKindOwner, "r1", "r1"))
	ctx := context.Background()

	code, err := c.GetUnitCode(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "A-101", code)

	building, err := c.GetBuildingIDForUnit(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "b1", building)

	ids, err := c.GetResidentIDsForUnit(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)
}

func TestGetCurrentHousehold_NotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	h, err := c.GetCurrentHousehold(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, h)

	ids, err := c.GetResidentIDsForUnit(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"id":"inv-1"}`)
	}))
	id, err := c.CreateInvoice(context.Background(), &Invoice{Currency: "VND", Status: InvoiceStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, "inv-1", id)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDo_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	err := c.SendNotification(context.Background(), &Notification{ResidentID: "r1"})
	require.Error(t, err)
	assert.True(t, errs.IsExternal(err))
	assert.True(t, IsClientError(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSendNotification_Body(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications/internal", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	err := c.SendNotification(context.Background(), &Notification{
		Title:         "t",
		Message:       "m",
		ResidentID:    "r1",
		BuildingID:    "b1",
		ReferenceID:   "c1",
		ReferenceType: ReferenceTypeContractRenewal,
	})
	require.NoError(t, err)
	assert.Equal(t, NotificationTypeSystem, got["type"])
	assert.Equal(t, "r1", got["residentId"])
	assert.Equal(t, ReferenceTypeContractRenewal, got["referenceType"])
}

func TestCreateAssetInspection(t *testing.T) {
	var got AssetInspection
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	require.NoError(t, c.CreateAssetInspection(context.Background(), &AssetInspection{
		ContractID: "c1", UnitID: "u1", InspectionDate: "2025-03-31",
	}))
	assert.Equal(t, "2025-03-31", got.InspectionDate)
	assert.Nil(t, got.ScheduledDate)
}

func TestInvoiceAmountsEncodeAsDecimals(t *testing.T) {
	raw, err := json.Marshal(&InvoiceLine{UnitPrice: decimal.RequireFromString("15000000.50")})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"unitPrice":"15000000.5"`)
}
