package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/internal/app/service/contract"
	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/app/service/scheduler"
	"github.com/qhomebase/contract-renewal/internal/app/service/statistics"
	models "github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/response"
)

type ScanContractsResponse struct {
	Items []*models.Contract `json:"items"`
	Total int64              `json:"total"`
}

// @Summary      Scan contracts (Admin)
// @Description  Retrieves a paginated, filterable and sortable list of contracts.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body contract.ScanRequest true "Filters, pagination and sort"
// @Success      200  {object}  handlers.RespScanContracts
// @Router       /api/v1/admin/contracts/scan [post]
func ApiScanContracts(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contract.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		items, total, err := svc.Store().Scan(c.Request.Context(), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ScanContractsResponse{Items: items, Total: total}))
	}
}

// @Summary      Renewal statistics (Admin)
// @Description  Counts by status, daily transitions, reminders, revenue and conversion.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.Request true "Statistic request parameters"
// @Success      200  {object}  handlers.RespRenewalStatistic
// @Router       /api/v1/admin/statistics [post]
func ApiGetRenewalStatistic(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.GetRenewalStatistic(c.Request.Context(), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Trigger job (Admin)
// @Description  Runs a renewal job now, regardless of its schedule.
// @Tags         Admin
// @Produce      json
// @Param        name  path  string  true  "Job name"
// @Success      200  {object}  handlers.RespJobResult
// @Router       /api/v1/admin/jobs/{name}/trigger [post]
func ApiTriggerJob(r *scheduler.Runner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := r.RunNow(c.Request.Context(), c.Param("name"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List jobs (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespJobList
// @Router       /api/v1/admin/jobs [get]
func ApiListJobs(r *scheduler.Runner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := r.List(c.Request.Context())
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List side effect tasks (Admin)
// @Tags         Admin
// @Produce      json
// @Param        status       query  string  false  "pending, running, done or failed"
// @Param        contract_id  query  string  false  "Contract ID"
// @Param        from         query  int     false  "Offset"
// @Param        size         query  int     false  "Page size"
// @Success      200  {object}  handlers.RespOutboxList
// @Router       /api/v1/admin/outbox [get]
func ApiListOutbox(svc *outbox.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outbox.ListRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.List(c.Request.Context(), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Retry side effect task (Admin)
// @Description  Re-queues a failed task with a fresh attempt budget.
// @Tags         Admin
// @Produce      json
// @Param        id  path  string  true  "Task ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/outbox/{id}/retry [post]
func ApiRetryOutbox(svc *outbox.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Retry(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, log, err)
			return
		}
		svc.Kick()
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// AdminDeps groups what the admin routes need.
type AdminDeps struct {
	Contracts  *contract.Service
	Statistics *statistics.Service
	Runner     *scheduler.Runner
	Outbox     *outbox.Service
	Log        *zap.SugaredLogger
}

func RegisterAdminRoutes(r gin.IRouter, d AdminDeps) {
	r.POST("/contracts/scan", ApiScanContracts(d.Contracts, d.Log))
	r.POST("/statistics", ApiGetRenewalStatistic(d.Statistics, d.Log))
	r.GET("/jobs", ApiListJobs(d.Runner, d.Log))
	r.POST("/jobs/:name/trigger", ApiTriggerJob(d.Runner, d.Log))
	r.GET("/outbox", ApiListOutbox(d.Outbox, d.Log))
	r.POST("/outbox/:id/retry", ApiRetryOutbox(d.Outbox, d.Log))
}
