package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/internal/app/service/payment"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/response"
)

// callbackParams flattens the query; VNPay never repeats a key.
func callbackParams(c *gin.Context) map[string]string {
	q := c.Request.URL.Query()
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}

// @Summary      VNPay callback
// @Description  Gateway return and IPN endpoint. The signature is verified before the renewal is completed.
// @Tags         Webhook
// @Produce      json
// @Param        vnp_TxnRef         query  string  true  "Order reference"
// @Param        vnp_ResponseCode   query  string  true  "Gateway response code"
// @Param        vnp_SecureHash     query  string  true  "HMAC-SHA512 signature"
// @Success      200  {object}  handlers.RespPaymentOutcome
// @Router       /api/v1/contracts/vnpay/callback [get]
func ApiVNPayCallback(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := callbackParams(c)
		logctx.FromGin(c, log).Infow("vnpay_callback_received", "txn_ref", params["vnp_TxnRef"], "response_code", params["vnp_ResponseCode"])

		out, err := svc.HandleVNPayCallback(c.Request.Context(), params)
		if err != nil {
			fail(c, log, err)
			return
		}
		logctx.FromGin(c, log).Infow("vnpay_callback_handled", "contract_id", out.ContractID, "status", out.Status)
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Complete renewal manually (Admin)
// @Description  Settles a renewal paid outside the gateway.
// @Tags         Admin
// @Produce      json
// @Param        id   path  string  true  "Renewal contract ID"
// @Success      200  {object}  handlers.RespContract
// @Router       /api/v1/contracts/{id}/renew/complete [post]
func ApiCompleteRenewal(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.CompleteManually(c.Request.Context(), c.Param("id"), actingUser(c))
		if err != nil {
			fail(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// RegisterPaymentRoutes mounts the renewal payment endpoints. The callback
// is public because the gateway signs it; completion is gated by admin.
func RegisterPaymentRoutes(r gin.IRouter, svc *payment.Service, log *zap.SugaredLogger, admin gin.HandlerFunc) {
	r.GET("/vnpay/callback", ApiVNPayCallback(svc, log))
	r.POST("/:id/renew/complete", admin, ApiCompleteRenewal(svc, log))
}
