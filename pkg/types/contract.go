package types

type ContractType string

const (
	ContractTypeRental   ContractType = "RENTAL"
	ContractTypePurchase ContractType = "PURCHASE"
)

func (t ContractType) Valid() bool {
	return t == ContractTypeRental || t == ContractTypePurchase
}

// ContractStatus is the lifecycle status of a contract record.
type ContractStatus string

const (
	// ContractStatusInactive means created but start date not yet reached,
	// or a renewal waiting for payment.
	ContractStatusInactive  ContractStatus = "INACTIVE"
	ContractStatusActive    ContractStatus = "ACTIVE"
	ContractStatusCancelled ContractStatus = "CANCELLED"
	ContractStatusExpired   ContractStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s ContractStatus) Terminal() bool {
	return s == ContractStatusCancelled || s == ContractStatusExpired
}

// RenewalStatus is only meaningful while a rental contract is ACTIVE.
type RenewalStatus string

const (
	RenewalStatusPending  RenewalStatus = "PENDING"
	RenewalStatusReminded RenewalStatus = "REMINDED"
	RenewalStatusDeclined RenewalStatus = "DECLINED"
)

// ContractChangeReason is recorded on every contract log entry.
type ContractChangeReason string

const (
	ContractChangeReasonCreate          ContractChangeReason = "create"
	ContractChangeReasonUpdate          ContractChangeReason = "update"
	ContractChangeReasonDelete          ContractChangeReason = "delete"
	ContractChangeReasonActivate        ContractChangeReason = "activate"
	ContractChangeReasonExpire          ContractChangeReason = "expire"
	ContractChangeReasonReminder        ContractChangeReason = "reminder"
	ContractChangeReasonDismissReminder ContractChangeReason = "dismiss_reminder"
	ContractChangeReasonDecline         ContractChangeReason = "decline"
	ContractChangeReasonAutoDecline     ContractChangeReason = "auto_decline"
	ContractChangeReasonCancel          ContractChangeReason = "cancel"
	ContractChangeReasonAutoCancel      ContractChangeReason = "auto_cancel"
	ContractChangeReasonCheckout        ContractChangeReason = "checkout"
	ContractChangeReasonExtend          ContractChangeReason = "extend"
	ContractChangeReasonRenewRequest    ContractChangeReason = "renew_request"
	ContractChangeReasonRenewComplete   ContractChangeReason = "renew_complete"
	ContractChangeReasonRenewedBy       ContractChangeReason = "renewed_by"
)

// ActorSystem marks transitions triggered by scheduler jobs.
const ActorSystem = "system"
