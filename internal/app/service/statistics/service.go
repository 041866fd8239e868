package statistics

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

var Module = fx.Options(fx.Provide(New))

type StatisticType string

const (
	// Current contract counts
	StatisticTypeContractStatusCount StatisticType = "contract_status_count"
	StatisticTypeRenewalStatusCount  StatisticType = "renewal_status_count"

	// Daily activity
	StatisticTypeDailyTransitionCount StatisticType = "daily_transition_count"
	StatisticTypeDailyReminderCount   StatisticType = "daily_reminder_count"
	StatisticTypeDailyRenewalRevenue  StatisticType = "daily_renewal_revenue"

	// Renewal metrics
	StatisticTypeRenewalConversion StatisticType = "renewal_conversion"
)

// FilterType names filters that only make sense for some statistics.
type FilterType string

const (
	FilterTypeUnitID       FilterType = "unit_id"
	FilterTypeContractType FilterType = "contract_type"
	FilterTypeReason       FilterType = "reason"
	FilterTypeCreatedAt    FilterType = "created_at"
)

var validFilters = map[FilterType][]StatisticType{
	FilterTypeUnitID:       {StatisticTypeContractStatusCount, StatisticTypeRenewalStatusCount},
	FilterTypeContractType: {StatisticTypeContractStatusCount, StatisticTypeRenewalStatusCount},
	FilterTypeReason:       {StatisticTypeDailyTransitionCount},
	FilterTypeCreatedAt:    {StatisticTypeDailyTransitionCount, StatisticTypeDailyReminderCount, StatisticTypeDailyRenewalRevenue},
}

type DataItem struct {
	ID StatisticType `json:"id"`
}

type Request struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*DataItem           `json:"data_items" binding:"required,min=1"`
}

// Validate rejects filters on unknown fields before they reach SQL.
func (r *Request) Validate() error {
	allowed := lo.Map(lo.Keys(validFilters), func(f FilterType, _ int) string { return string(f) })
	for _, f := range r.Filters {
		if err := f.Validate(allowed); err != nil {
			return errs.Validation("filters", "%v", err)
		}
	}
	return nil
}

// filtersFor keeps the filters that apply to statisticType.
func (r *Request) filtersFor(statisticType StatisticType) types.FiltersWhere {
	var out types.FiltersWhere
	for _, f := range r.Filters {
		if lo.Contains(validFilters[FilterType(f.Field)], statisticType) {
			out = append(out, f)
		}
	}
	return out
}

type ResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
	// Value2 and Value3 carry the numerator and denominator of rates.
	Value2 int64 `json:"value2,omitempty"`
	Value3 int64 `json:"value3,omitempty"`
}

type Response struct {
	DataItems map[StatisticType][]ResponseDataItem `json:"data_items"`
}

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// day formats a timestamp column as YYYY-MM-DD in the connected dialect.
func (s *Service) day(column string) string {
	if s.db.Dialector.Name() == "sqlite" {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
}

func where(f types.FiltersWhere) clause.Where {
	return clause.Where{Exprs: []clause.Expression{f}}
}

func (s *Service) getContractStatusCount(ctx context.Context, r *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Contract{}.TableName()).
		Select("status as label, count(*) as value").
		Where(where(r.filtersFor(StatisticTypeContractStatusCount))).
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getRenewalStatusCount(ctx context.Context, r *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Contract{}.TableName()).
		Select("renewal_status as label, count(*) as value").
		Where("status = ? AND contract_type = ?", types.ContractStatusActive, types.ContractTypeRental).
		Where(where(r.filtersFor(StatisticTypeRenewalStatusCount))).
		Group("renewal_status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyTransitionCount(ctx context.Context, r *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	day := s.day("created_at")
	q := s.db.WithContext(ctx).Table(models.ContractLog{}.TableName()).
		Select(day + " as date, reason as label, count(*) as value").
		Where(where(r.filtersFor(StatisticTypeDailyTransitionCount))).
		Group(day).
		Group("reason").
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "date"}, Desc: true},
			{Column: clause.Column{Name: "label"}},
		}})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyReminderCount(ctx context.Context, r *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	day := s.day("sent_at")
	q := s.db.WithContext(ctx).Table(models.ReminderDispatch{}.TableName()).
		Select(day + " as date, 'STAGE_' || stage as label, count(*) as value").
		Where(where(renameField(r.filtersFor(StatisticTypeDailyReminderCount), string(FilterTypeCreatedAt), "sent_at"))).
		Group(day).
		Group("stage").
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "date"}, Desc: true},
			{Column: clause.Column{Name: "label"}},
		}})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRenewalRevenue(ctx context.Context, r *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	day := s.day("paid_at")
	q := s.db.WithContext(ctx).Table(models.PaymentIntent{}.TableName()).
		Select(day+" as date, provider_id as label, CAST(sum(amount) AS BIGINT) as value, count(*) as value2").
		Where("status = ?", types.PaymentIntentStatusPaid).
		Where(where(renameField(r.filtersFor(StatisticTypeDailyRenewalRevenue), string(FilterTypeCreatedAt), "paid_at"))).
		Group(day).
		Group("provider_id").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getRenewalConversion reports, per month of end date, how many reminded
// contracts were renewed. Value is the rate in basis points.
func (s *Service) getRenewalConversion(ctx context.Context, _ *Request) ([]ResponseDataItem, error) {
	var rows []struct {
		Date    string
		Renewed int64
		Total   int64
	}
	month := "TO_CHAR(end_date, 'YYYY-MM')"
	if s.db.Dialector.Name() == "sqlite" {
		month = "strftime('%Y-%m', end_date)"
	}
	err := s.db.WithContext(ctx).Table(models.Contract{}.TableName()).
		Select(month+" as date, "+
			"SUM(CASE WHEN renewed_contract_id IS NOT NULL THEN 1 ELSE 0 END) as renewed, count(*) as total").
		Where("contract_type = ? AND renewal_reminder_sent_at IS NOT NULL", types.ContractTypeRental).
		Group(month).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(row struct {
		Date    string
		Renewed int64
		Total   int64
	}, _ int) ResponseDataItem {
		item := ResponseDataItem{Date: row.Date, Value2: row.Renewed, Value3: row.Total}
		if row.Total > 0 {
			item.Value = row.Renewed * 10000 / row.Total
		}
		return item
	}), nil
}

// renameField points created_at filters at the table's own timestamp column.
func renameField(filters types.FiltersWhere, from, to string) types.FiltersWhere {
	return lo.Map(filters, func(f *types.CommonFilter, _ int) *types.CommonFilter {
		if f.Field != from {
			return f
		}
		cp := *f
		cp.Field = to
		return &cp
	})
}

func (s *Service) getStatistic(ctx context.Context, r *Request, item *DataItem) ([]ResponseDataItem, error) {
	switch item.ID {
	case StatisticTypeContractStatusCount:
		return s.getContractStatusCount(ctx, r)
	case StatisticTypeRenewalStatusCount:
		return s.getRenewalStatusCount(ctx, r)
	case StatisticTypeDailyTransitionCount:
		return s.getDailyTransitionCount(ctx, r)
	case StatisticTypeDailyReminderCount:
		return s.getDailyReminderCount(ctx, r)
	case StatisticTypeDailyRenewalRevenue:
		return s.getDailyRenewalRevenue(ctx, r)
	case StatisticTypeRenewalConversion:
		return s.getRenewalConversion(ctx, r)
	default:
		return nil, errs.Validation("data_items", "invalid data item id: %s", item.ID)
	}
}

// GetRenewalStatistic computes every requested data item concurrently.
func (s *Service) GetRenewalStatistic(ctx context.Context, r *Request) (*Response, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	errChan := make(chan error, len(r.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []ResponseDataItem], len(r.DataItems))

	for _, item := range r.DataItems {
		go func(di *DataItem) {
			res, err := s.getStatistic(ctx, r, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []ResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	// Every goroutine sends exactly once on one of the channels.
	results := make(map[StatisticType][]ResponseDataItem)
	for i := 0; i < len(r.DataItems); i++ {
		select {
		case err := <-errChan:
			return nil, err
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &Response{DataItems: results}, nil
}
