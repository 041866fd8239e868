package sideeffect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/internal/platform/baseclient"
	"github.com/qhomebase/contract-renewal/internal/platform/db/dbtest"
	"github.com/qhomebase/contract-renewal/internal/platform/events"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

type fakeAPI struct {
	residents     []string
	residentErr   error
	building      string
	unitCode      string
	residentOf    map[string]string
	household     *baseclient.Household
	failResidents map[string]bool

	notifications []*baseclient.Notification
	invoices      []*baseclient.Invoice
	inspections   []*baseclient.AssetInspection
	deleted       []string
}

func (f *fakeAPI) GetBuildingIDForUnit(context.Context, string) (string, error) {
	if f.building == "" {
		return "", errors.New("no building")
	}
	return f.building, nil
}

func (f *fakeAPI) GetUnitCode(context.Context, string) (string, error) {
	if f.unitCode == "" {
		return "", errors.New("no unit")
	}
	return f.unitCode, nil
}

func (f *fakeAPI) GetResidentIDsForUnit(context.Context, string) ([]string, error) {
	return f.residents, f.residentErr
}

func (f *fakeAPI) ResidentIDForUser(_ context.Context, userID string) (string, error) {
	return f.residentOf[userID], nil
}

func (f *fakeAPI) GetCurrentHousehold(context.Context, string) (*baseclient.Household, error) {
	return f.household, nil
}

func (f *fakeAPI) DeleteHousehold(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) SendNotification(_ context.Context, n *baseclient.Notification) error {
	if f.failResidents[n.ResidentID] {
		return errors.New("notification-service down")
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeAPI) CreateInvoice(_ context.Context, inv *baseclient.Invoice) (string, error) {
	f.invoices = append(f.invoices, inv)
	return "inv-1", nil
}

func (f *fakeAPI) CreateAssetInspection(_ context.Context, in *baseclient.AssetInspection) error {
	f.inspections = append(f.inspections, in)
	return nil
}

type recordingPublisher struct {
	events []*events.ContractEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev *events.ContractEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// asRow turns a task into the row the dispatcher would load.
func asRow(t *testing.T, task outbox.Task) *models.SideEffectTask {
	t.Helper()
	raw, err := jsoniter.Marshal(task.Payload)
	require.NoError(t, err)
	payload := datatypes.JSONMap{}
	require.NoError(t, jsoniter.Unmarshal(raw, &payload))
	return &models.SideEffectTask{ID: "task-1", Kind: task.Kind, DedupKey: task.DedupKey, ContractID: task.ContractID, Payload: payload}
}

func testContract() *models.Contract {
	return &models.Contract{
		ID:             "c-1",
		UnitID:         "unit-1",
		ContractNumber: "HD-001",
		ContractType:   types.ContractTypeRental,
		StartDate:      tool.Date(2025, time.April, 1),
		EndDate:        lo.ToPtr(tool.Date(2025, time.September, 30)),
		Status:         types.ContractStatusActive,
		RenewalStatus:  types.RenewalStatusReminded,
		Version:        3,
	}
}

func newTestHandlers(api *fakeAPI) (*Handlers, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewHandlers(api, pub, zap.NewNop().Sugar()), pub
}

func TestNotifyResidents_StageTexts(t *testing.T) {
	cases := []struct {
		stage int
		title string
		want  string
	}{
		{1, "Nhắc nhở gia hạn hợp đồng", "trong vòng 1 tháng"},
		{2, "Nhắc nhở gia hạn hợp đồng (Lần 2)", "ngay."},
		{3, "Thông báo cuối cùng - Gia hạn hợp đồng", "BẮT BUỘC"},
	}
	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			api := &fakeAPI{residents: []string{"r-1", "r-2"}, building: "b-1"}
			h, _ := newTestHandlers(api)
			require.NoError(t, h.NotifyResidents(context.Background(), asRow(t, NotifyResidentsTask(testContract(), tc.stage))))

			require.Len(t, api.notifications, 2)
			n := api.notifications[0]
			assert.Equal(t, tc.title, n.Title)
			assert.Contains(t, n.Message, "HD-001")
			assert.Contains(t, n.Message, tc.want)
			assert.Equal(t, "r-1", n.ResidentID)
			assert.Equal(t, "b-1", n.BuildingID)
			assert.Equal(t, "c-1", n.ReferenceID)
			assert.Equal(t, baseclient.ReferenceTypeContractRenewal, n.ReferenceType)
			assert.Equal(t, "/contracts/c-1/renewal", n.ActionURL)
		})
	}
}

func TestNotifyResidents_PartialFailureSucceeds(t *testing.T) {
	api := &fakeAPI{residents: []string{"r-1", "r-2"}, failResidents: map[string]bool{"r-1": true}}
	h, _ := newTestHandlers(api)
	require.NoError(t, h.NotifyResidents(context.Background(), asRow(t, NotifyResidentsTask(testContract(), 1))))
	require.Len(t, api.notifications, 1)
	assert.Empty(t, api.notifications[0].BuildingID)
}

func TestNotifyResidents_AllFailuresRetry(t *testing.T) {
	api := &fakeAPI{residents: []string{"r-1"}, failResidents: map[string]bool{"r-1": true}}
	h, _ := newTestHandlers(api)
	err := h.NotifyResidents(context.Background(), asRow(t, NotifyResidentsTask(testContract(), 2)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification-service down")
}

func TestNotifyResidents_NoResidents(t *testing.T) {
	api := &fakeAPI{}
	h, _ := newTestHandlers(api)
	require.NoError(t, h.NotifyResidents(context.Background(), asRow(t, NotifyResidentsTask(testContract(), 1))))
	assert.Empty(t, api.notifications)
}

func TestCreateInspection(t *testing.T) {
	api := &fakeAPI{}
	h, _ := newTestHandlers(api)
	scheduled := tool.Date(2025, time.May, 2)
	task := InspectionTask(testContract(), scheduled, &scheduled)
	require.NoError(t, h.CreateInspection(context.Background(), asRow(t, task)))

	require.Len(t, api.inspections, 1)
	in := api.inspections[0]
	assert.Equal(t, "c-1", in.ContractID)
	assert.Equal(t, "2025-05-02", in.InspectionDate)
	require.NotNil(t, in.ScheduledDate)
	assert.Equal(t, "2025-05-02", *in.ScheduledDate)
	assert.Nil(t, in.InspectorID)
}

func TestTeardownHousehold(t *testing.T) {
	t.Run("no household", func(t *testing.T) {
		api := &fakeAPI{}
		h, _ := newTestHandlers(api)
		require.NoError(t, h.TeardownHousehold(context.Background(), asRow(t, TeardownTask(testContract()))))
		assert.Empty(t, api.deleted)
	})
	t.Run("deletes current household", func(t *testing.T) {
		api := &fakeAPI{household: &baseclient.Household{ID: "hh-1"}}
		h, _ := newTestHandlers(api)
		require.NoError(t, h.TeardownHousehold(context.Background(), asRow(t, TeardownTask(testContract()))))
		assert.Equal(t, []string{"hh-1"}, api.deleted)
	})
}

func TestCreateInvoice(t *testing.T) {
	api := &fakeAPI{unitCode: "A101", residentOf: map[string]string{"user-1": "r-9"}}
	h, _ := newTestHandlers(api)
	c := testContract()
	amount := decimal.NewFromInt(30_000_000)
	require.NoError(t, h.CreateInvoice(context.Background(), asRow(t, InvoiceTask(c, "user-1", amount, "txn-1"))))

	require.Len(t, api.invoices, 1)
	inv := api.invoices[0]
	assert.Equal(t, "2025-09-30", inv.DueDate)
	assert.Equal(t, "VND", inv.Currency)
	assert.Equal(t, "Cư dân - A101", inv.BillToName)
	assert.Equal(t, "unit-1", inv.PayerUnitID)
	assert.Equal(t, "r-9", inv.PayerResidentID)
	assert.Equal(t, baseclient.InvoiceStatusPaid, inv.Status)
	require.Len(t, inv.Lines, 1)
	line := inv.Lines[0]
	assert.Equal(t, "2025-04-01", line.ServiceDate)
	assert.Equal(t, "Gia hạn hợp đồng HD-001 từ 2025-04-01 đến 2025-09-30", line.Description)
	assert.True(t, line.UnitPrice.Equal(amount))
	assert.True(t, line.Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, line.TaxRate.IsZero())
	assert.Equal(t, baseclient.ServiceCodeContractRenewal, line.ServiceCode)
	assert.Equal(t, "c-1", line.ExternalRefID)
}

func TestCreateInvoice_ZeroAmountIsPermanent(t *testing.T) {
	api := &fakeAPI{unitCode: "A101"}
	h, _ := newTestHandlers(api)
	err := h.CreateInvoice(context.Background(), asRow(t, InvoiceTask(testContract(), "", decimal.Zero, "txn-1")))
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Empty(t, api.invoices)
}

func TestPublishEvent(t *testing.T) {
	h, pub := newTestHandlers(&fakeAPI{})
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, h.PublishEvent(context.Background(), asRow(t, EventTask(testContract(), "reminder", "system", at))))
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "c-1:v3", ev.EventID)
	assert.Equal(t, "REMINDED", ev.RenewalStatus)
	assert.True(t, at.Equal(ev.OccurredAt))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"bad inspection"}`))
	}))
	defer srv.Close()

	cfg := &config.Config{Clients: config.ClientsConfig{BaseServiceURL: srv.URL, Timeout: time.Second}}
	client := baseclient.NewClient(cfg, zap.NewNop().Sugar())
	h := NewHandlers(client, &recordingPublisher{}, zap.NewNop().Sugar())

	err := h.CreateInspection(context.Background(), asRow(t, InspectionTask(testContract(), tool.Date(2025, time.May, 2), nil)))
	require.Error(t, err)
	var permanent *backoff.PermanentError
	assert.ErrorAs(t, err, &permanent)
	assert.True(t, baseclient.IsClientError(err))
}

func TestDispatcher_RunsRegisteredHandlers(t *testing.T) {
	gdb := dbtest.Open(t)
	clock := tool.NewFixedClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), time.UTC)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{Outbox: config.OutboxConfig{CallTimeout: time.Second}}
	svc := outbox.NewService(gdb, clock, log)
	d := outbox.NewDispatcher(cfg, gdb, clock, log, nil, svc)

	api := &fakeAPI{residents: []string{"r-1"}}
	h, pub := newTestHandlers(api)
	h.Register(d)

	c := testContract()
	require.NoError(t, svc.Enqueue(context.Background(), gdb,
		NotifyResidentsTask(c, 1),
		EventTask(c, "reminder", "system", clock.Now()),
	))
	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, api.notifications, 1)
	assert.Len(t, pub.events, 1)

	var done int64
	require.NoError(t, gdb.Model(&models.SideEffectTask{}).Where("status = ?", models.SideEffectStatusDone).Count(&done).Error)
	assert.EqualValues(t, 2, done)
}
