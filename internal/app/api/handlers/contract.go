package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/internal/app/service/contract"
	"github.com/qhomebase/contract-renewal/pkg/response"
)

type RenewContractRequest struct {
	StartDate string `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" binding:"required,datetime=2006-01-02"`
}

type CancelContractRequest struct {
	ScheduledInspectionDate string `json:"scheduled_inspection_date" binding:"omitempty,datetime=2006-01-02"`
}

type ExtendContractRequest struct {
	NewEndDate string `json:"new_end_date" binding:"required,datetime=2006-01-02"`
}

type CheckoutContractRequest struct {
	CheckoutDate string `json:"checkout_date" binding:"required,datetime=2006-01-02"`
}

// parseDates converts wire dates in order; an empty value stays zero.
func parseDates(pairs ...[2]string) ([]time.Time, error) {
	out := make([]time.Time, len(pairs))
	for i, p := range pairs {
		if p[1] == "" {
			continue
		}
		t, err := contract.ParseDate(p[0], p[1])
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// @Summary      Create contract
// @Description  Creates a rental or purchase contract. The status follows the start date.
// @Tags         Contract
// @Accept       json
// @Produce      json
// @Param        request body contract.CreateRequest true "Contract"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts [post]
func ApiCreateContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contract.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		out, err := svc.Create(c.Request.Context(), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Get contract
// @Tags         Contract
// @Produce      json
// @Param        id   path  string  true  "Contract ID"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id} [get]
func ApiGetContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Update contract
// @Description  Changes descriptive fields. Renewal state cannot be edited here.
// @Tags         Contract
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true  "Contract ID"
// @Param        request  body  contract.UpdateRequest  true  "Fields to change"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id} [put]
func ApiUpdateContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req contract.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		out, err := svc.Update(c.Request.Context(), c.Param("id"), &req)
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Delete contract
// @Tags         Contract
// @Produce      json
// @Param        id   path  string  true  "Contract ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/contracts/{id} [delete]
func ApiDeleteContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      List unit contracts
// @Tags         Contract
// @Produce      json
// @Param        unitId  path  string  true  "Unit ID"
// @Success      200  {object}  handlers.RespContractList
// @Router       /api/v1/contracts/unit/{unitId} [get]
func ApiListUnitContracts(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.ListByUnit(c.Request.Context(), c.Param("unitId"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Contracts needing a renewal popup
// @Description  Reminded rentals of the unit whose current stage has not been dismissed.
// @Tags         Contract
// @Produce      json
// @Param        unitId  path  string  true  "Unit ID"
// @Success      200  {object}  handlers.RespContractList
// @Router       /api/v1/contracts/unit/{unitId}/popup [get]
func ApiContractsNeedingPopup(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.GetContractsNeedingPopup(c.Request.Context(), c.Param("unitId"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Renew contract
// @Description  Creates the unpaid successor and returns the gateway payment URL.
// @Tags         Renewal
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true  "Contract ID"
// @Param        request  body  handlers.RenewContractRequest  true  "Renewal period"
// @Success      200  {object}  handlers.RespRenewResult
// @Router       /api/v1/contracts/{id}/renew [post]
func ApiRenewContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenewContractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		dates, err := parseDates([2]string{"start_date", req.StartDate}, [2]string{"end_date", req.EndDate})
		if err != nil {
			fail(c, log, err)
			return
		}
		out, err := svc.RenewContract(c.Request.Context(), &contract.RenewRequest{
			ContractID: c.Param("id"),
			StartDate:  dates[0],
			EndDate:    dates[1],
			ActingUser: actingUser(c),
			ClientIP:   c.ClientIP(),
		})
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Check renewal period
// @Description  Runs the renewal preconditions, date rules and overlap check without creating anything.
// @Tags         Renewal
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true  "Contract ID"
// @Param        request  body  handlers.RenewContractRequest  true  "Renewal period"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/contracts/{id}/renew/validate [post]
func ApiValidateRenewal(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenewContractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		dates, err := parseDates([2]string{"start_date", req.StartDate}, [2]string{"end_date", req.EndDate})
		if err != nil {
			fail(c, log, err)
			return
		}
		if err := svc.ValidateRenewalPeriod(c.Request.Context(), c.Param("id"), dates[0], dates[1]); err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Send renewal reminder
// @Tags         Renewal
// @Produce      json
// @Param        id   path  string  true  "Contract ID"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id}/reminder [post]
func ApiSendReminder(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.SendReminder(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Dismiss renewal reminder
// @Description  Hides the popup for the current stage. The final reminder cannot be dismissed.
// @Tags         Renewal
// @Produce      json
// @Param        id   path  string  true  "Contract ID"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id}/dismiss-reminder [post]
func ApiDismissReminder(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.DismissReminder(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Decline renewal
// @Tags         Renewal
// @Produce      json
// @Param        id   path  string  true  "Contract ID"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id}/renewal/decline [post]
func ApiDeclineRenewal(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.MarkRenewalDeclined(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Cancel contract
// @Description  Cancels an active rental, books the move-out inspection and releases the household.
// @Tags         Renewal
// @Accept       json
// @Produce      json
// @Param        id       path  string                          true   "Contract ID"
// @Param        request  body  handlers.CancelContractRequest  false  "Inspection date"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id}/cancel [post]
func ApiCancelContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelContractRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err)
				return
			}
		}
		dates, err := parseDates([2]string{"scheduled_inspection_date", req.ScheduledInspectionDate})
		if err != nil {
			fail(c, log, err)
			return
		}
		var scheduled *time.Time
		if !dates[0].IsZero() {
			scheduled = &dates[0]
		}
		out, err := svc.CancelContract(c.Request.Context(), c.Param("id"), scheduled, actingUser(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Extend contract
// @Description  Moves the end date forward and restarts the reminder cycle.
// @Tags         Renewal
// @Accept       json
// @Produce      json
// @Param        id       path  string                          true  "Contract ID"
// @Param        request  body  handlers.ExtendContractRequest  true  "New end date"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id}/extend [post]
func ApiExtendContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExtendContractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		dates, err := parseDates([2]string{"new_end_date", req.NewEndDate})
		if err != nil {
			fail(c, log, err)
			return
		}
		out, err := svc.ExtendContract(c.Request.Context(), c.Param("id"), dates[0], actingUser(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Check out
// @Description  Ends a rental on the move-out date.
// @Tags         Renewal
// @Accept       json
// @Produce      json
// @Param        id       path  string                            true  "Contract ID"
// @Param        request  body  handlers.CheckoutContractRequest  true  "Checkout date"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id}/checkout [post]
func ApiCheckoutContract(svc *contract.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutContractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		dates, err := parseDates([2]string{"checkout_date", req.CheckoutDate})
		if err != nil {
			fail(c, log, err)
			return
		}
		out, err := svc.Checkout(c.Request.Context(), c.Param("id"), dates[0], actingUser(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// RegisterContractRoutes mounts the user-facing contract API. The group must
// already require an authenticated user.
func RegisterContractRoutes(r gin.IRouter, svc *contract.Service, log *zap.SugaredLogger) {
	r.POST("", ApiCreateContract(svc, log))
	r.GET("/unit/:unitId", ApiListUnitContracts(svc, log))
	r.GET("/unit/:unitId/popup", ApiContractsNeedingPopup(svc, log))
	r.GET("/:id", ApiGetContract(svc, log))
	r.PUT("/:id", ApiUpdateContract(svc, log))
	r.DELETE("/:id", ApiDeleteContract(svc, log))
	r.POST("/:id/renew", ApiRenewContract(svc, log))
	r.POST("/:id/renew/validate", ApiValidateRenewal(svc, log))
	r.POST("/:id/reminder", ApiSendReminder(svc, log))
	r.POST("/:id/dismiss-reminder", ApiDismissReminder(svc, log))
	r.POST("/:id/renewal/decline", ApiDeclineRenewal(svc, log))
	r.POST("/:id/cancel", ApiCancelContract(svc, log))
	r.POST("/:id/extend", ApiExtendContract(svc, log))
	r.POST("/:id/checkout", ApiCheckoutContract(svc, log))
}
