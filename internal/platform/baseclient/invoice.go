package baseclient

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

const (
	InvoiceStatusPaid          = "PAID"
	ServiceCodeContractRenewal = "CONTRACT_RENEWAL"
	ExternalRefTypeContract    = "CONTRACT"
)

type InvoiceLine struct {
	ServiceDate     string          `json:"serviceDate"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TaxRate         decimal.Decimal `json:"taxRate"`
	ServiceCode     string          `json:"serviceCode"`
	ExternalRefType string          `json:"externalRefType"`
	ExternalRefID   string          `json:"externalRefId"`
}

type Invoice struct {
	DueDate         string         `json:"dueDate"`
	Currency        string         `json:"currency"`
	BillToName      string         `json:"billToName"`
	PayerUnitID     string         `json:"payerUnitId"`
	PayerResidentID string         `json:"payerResidentId,omitempty"`
	Status          string         `json:"status"`
	Lines           []*InvoiceLine `json:"lines"`
}

type invoiceResponse struct {
	ID string `json:"id"`
}

// CreateInvoice returns the new invoice id, or "" when finance did not return one.
func (c *Client) CreateInvoice(ctx context.Context, inv *Invoice) (string, error) {
	var resp invoiceResponse
	if err := c.do(ctx, serviceFinance, http.MethodPost, c.financeURL+"/api/invoices", inv, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
