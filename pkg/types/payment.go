package types

type PaymentProvider string

const (
	PaymentProviderVNPay PaymentProvider = "vnpay"
	// PaymentProviderManual is used when an operator completes a renewal by hand.
	PaymentProviderManual PaymentProvider = "manual"
)

type PaymentIntentStatus string

const (
	PaymentIntentStatusPending PaymentIntentStatus = "pending"
	PaymentIntentStatusPaid    PaymentIntentStatus = "paid"
	PaymentIntentStatusFailed  PaymentIntentStatus = "failed"
)

// Gateway response codes that mean the payment went through.
const (
	PaymentResponseCodeSuccess      = "00"
	PaymentTransactionStatusSuccess = "00"
)
