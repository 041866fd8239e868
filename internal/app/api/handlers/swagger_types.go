package handlers

import (
	"github.com/qhomebase/contract-renewal/internal/app/service/contract"
	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/app/service/payment"
	"github.com/qhomebase/contract-renewal/internal/app/service/scheduler"
	"github.com/qhomebase/contract-renewal/internal/app/service/statistics"
	models "github.com/qhomebase/contract-renewal/internal/models"
	"github.com/qhomebase/contract-renewal/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespContract struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Contract          `json:"data"`
}

type RespContractList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Contract        `json:"data"`
}

type RespRenewResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    contract.RenewResult     `json:"data"`
}

type RespPaymentOutcome struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.Outcome          `json:"data"`
}

type RespScanContracts struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ScanContractsResponse    `json:"data"`
}

// RespRenewalStatistic wraps statistics.Response in the standard envelope.
type RespRenewalStatistic struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Response      `json:"data"`
}

type RespJobResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    scheduler.Result         `json:"data"`
}

type RespJobList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []scheduler.JobStatus    `json:"data"`
}

type RespOutboxList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    outbox.ListResponse      `json:"data"`
}
