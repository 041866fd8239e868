// Package contract implements the contract renewal workflow: reminders, decline,
// cancellation, renewal with payment, and the renewal chain bookkeeping.
package contract

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/app/service/sideeffect"
	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/internal/platform/vnpay"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/metrics"
	"github.com/qhomebase/contract-renewal/pkg/tool"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

// UnitDirectory answers unit and household questions for the workflow.
type UnitDirectory interface {
	IsOwnerOfUnit(ctx context.Context, userID, unitID string) (bool, error)
	GetUnitCode(ctx context.Context, unitID string) (string, error)
}

// PaymentGateway signs payment URLs for renewal checkouts.
type PaymentGateway interface {
	CreatePaymentURL(ctx context.Context, req *vnpay.PaymentRequest) (*vnpay.PaymentURL, error)
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	clock    tool.Clock
	store    *Store
	units    UnitDirectory
	gateway  PaymentGateway
	outbox   *outbox.Service
	metrics  *metrics.Business
	validate *validator.Validate
}

func NewService(
	cfg *config.Config,
	db *gorm.DB,
	log *zap.SugaredLogger,
	clock tool.Clock,
	units UnitDirectory,
	gateway PaymentGateway,
	ob *outbox.Service,
	m *metrics.Business,
) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		log:      log,
		clock:    clock,
		store:    NewStore(db),
		units:    units,
		gateway:  gateway,
		outbox:   ob,
		metrics:  m,
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Store exposes read access for the scheduler and the admin handlers.
func (s *Service) Store() *Store {
	return s.store
}

// errSkip aborts a transition without writing. The caller gets the unchanged contract.
var errSkip = errors.New("contract: no change")

type change struct {
	reason types.ContractChangeReason
	actor  string
	extra  map[string]any
	tasks  []outbox.Task
	// write replaces the default versioned update.
	write    func(st *Store, c *models.Contract, prevVersion int64) error
	onCommit []func()
}

func (ch *change) enqueue(tasks ...outbox.Task) {
	ch.tasks = append(ch.tasks, tasks...)
}

func (ch *change) set(key string, value any) {
	if ch.extra == nil {
		ch.extra = map[string]any{}
	}
	ch.extra[key] = value
}

func actorOr(userID string) string {
	if userID == "" {
		return types.ActorSystem
	}
	return userID
}

// transition loads the contract inside a transaction, lets fn mutate a copy, and
// persists the copy with its log entry and outbox tasks.
func (s *Service) transition(
	ctx context.Context,
	id string,
	reason types.ContractChangeReason,
	actingUser string,
	fn func(tx *gorm.DB, c *models.Contract, ch *change) error,
) (*models.Contract, error) {
	var current *models.Contract
	ch := &change{reason: reason, actor: actorOr(actingUser)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := s.store.WithTx(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		current = before
		after := before.Clone()
		if err := fn(tx, after, ch); err != nil {
			return err
		}
		if err := s.persist(ctx, tx, before, after, ch); err != nil {
			return err
		}
		current = after
		return nil
	})
	if errors.Is(err, errSkip) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, id, ch)
	return current, nil
}

// persist writes after over before, conditioned on the version read in the same transaction.
func (s *Service) persist(ctx context.Context, tx *gorm.DB, before, after *models.Contract, ch *change) error {
	st := s.store.WithTx(tx)
	after.Version = before.Version + 1
	after.UpdatedBy = ch.actor
	write := ch.write
	if write == nil {
		write = func(st *Store, c *models.Contract, prev int64) error {
			return st.UpdateVersioned(ctx, c, prev)
		}
	}
	if err := write(st, after, before.Version); err != nil {
		return err
	}
	return s.record(ctx, tx, before, after, ch)
}

// insert creates c and records it the same way a transition is recorded.
func (s *Service) insert(ctx context.Context, tx *gorm.DB, c *models.Contract, ch *change) error {
	c.Version = 1
	c.CreatedBy = ch.actor
	c.UpdatedBy = ch.actor
	if err := s.store.WithTx(tx).Create(ctx, c); err != nil {
		return err
	}
	return s.record(ctx, tx, nil, c, ch)
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, before, after *models.Contract, ch *change) error {
	subject := after
	if subject == nil {
		subject = before
	}
	extra := datatypes.JSONMap{}
	for k, v := range ch.extra {
		extra[k] = v
	}
	if tid := logctx.TraceID(ctx); tid != "" {
		extra["trace_id"] = tid
	}
	entry := &models.ContractLog{
		ID:         tool.GenerateUUIDV7(),
		ContractID: subject.ID,
		Reason:     ch.reason,
		Actor:      ch.actor,
		Before:     datatypes.NewJSONType(before),
		After:      datatypes.NewJSONType(after),
		Extra:      extra,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create contract log: %w", err)
	}

	event := *subject
	if after == nil {
		event.Version++
	}
	tasks := append(ch.tasks, sideeffect.EventTask(&event, string(ch.reason), ch.actor, s.clock.Now()))
	ch.tasks = nil
	return s.outbox.Enqueue(ctx, tx, tasks...)
}

func (s *Service) afterCommit(ctx context.Context, id string, ch *change) {
	s.metrics.IncTransition(string(ch.reason))
	for _, fn := range ch.onCommit {
		fn()
	}
	s.outbox.Kick()
	logctx.FromCtx(ctx, s.log).Infow("contract transition committed", "contract_id", id, "reason", ch.reason, "actor", ch.actor)
}

// requireOwner checks the acting user against the unit household. System actions skip the check.
func (s *Service) requireOwner(ctx context.Context, actingUser string, c *models.Contract) error {
	if actingUser == "" {
		return nil
	}
	ok, err := s.units.IsOwnerOfUnit(ctx, actingUser, c.UnitID)
	if err != nil {
		return fmt.Errorf("failed to check unit ownership: %w", err)
	}
	if !ok {
		return errs.Permission(actingUser, "not the owner or tenant of unit %s", c.UnitID)
	}
	return nil
}

func requireRental(c *models.Contract) error {
	if !c.IsRental() {
		return errs.Precondition(errs.ReasonWrongType, "contract %s is %s, only rental contracts can be renewed", c.ContractNumber, c.ContractType)
	}
	return nil
}

func requireStatus(c *models.Contract, want types.ContractStatus) error {
	if c.Status != want {
		return errs.Precondition(errs.ReasonWrongStatus, "contract %s is %s, expected %s", c.ContractNumber, c.Status, want)
	}
	return nil
}

func requireActiveRental(c *models.Contract) error {
	if err := requireRental(c); err != nil {
		return err
	}
	return requireStatus(c, types.ContractStatusActive)
}

func requireOpenRenewal(c *models.Contract) error {
	switch c.RenewalStatus {
	case types.RenewalStatusPending, types.RenewalStatusReminded:
		return nil
	case types.RenewalStatusDeclined:
		return errs.Precondition(errs.ReasonAlreadyDeclined, "contract %s renewal was already declined", c.ContractNumber)
	default:
		return errs.Precondition(errs.ReasonWrongRenewalStatus, "contract %s renewal status is %s", c.ContractNumber, c.RenewalStatus)
	}
}

// requireSettled rejects renewal placeholders whose payment has not completed.
func requireSettled(c *models.Contract) error {
	if c.AwaitingPayment {
		return errs.Precondition(errs.ReasonWrongStatus, "contract %s is awaiting renewal payment", c.ContractNumber)
	}
	return nil
}

func requireNotRenewed(c *models.Contract) error {
	if c.Renewed() {
		return errs.Precondition(errs.ReasonAlreadyRenewed, "contract %s was already renewed by %s", c.ContractNumber, *c.RenewedContractID)
	}
	return nil
}
