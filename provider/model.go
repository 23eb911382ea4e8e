package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the canonical transaction kind shared by every gateway.
type TransactionType string

const (
	TxTypePay           TransactionType = "pay"
	TxTypePreAuth       TransactionType = "pre"
	TxTypePostAuth      TransactionType = "post"
	TxTypeCancel        TransactionType = "cancel"
	TxTypeRefund        TransactionType = "refund"
	TxTypeRefundPartial TransactionType = "refund_partial"
	TxTypeStatus        TransactionType = "status"
	TxTypeHistory       TransactionType = "history"
	TxTypeOrderHistory  TransactionType = "order_history"
	TxTypeCustomQuery   TransactionType = "custom_query"
)

// IsPayment reports whether the type moves money into the merchant account.
func (t TransactionType) IsPayment() bool {
	return t == TxTypePay || t == TxTypePreAuth
}

// SecurityModel determines who collects card data and who performs the
// final authorization.
type SecurityModel string

const (
	ModelNonSecure    SecurityModel = "regular"
	Model3DSecure     SecurityModel = "3d"
	Model3DPay        SecurityModel = "3d_pay"
	Model3DPayHosting SecurityModel = "3d_pay_hosting"
	Model3DHost       SecurityModel = "3d_host"
)

// IsHosted reports whether the card holder types card data on the bank page.
func (m SecurityModel) IsHosted() bool {
	return m == Model3DPayHosting || m == Model3DHost
}

// Settled reports whether the bank settles the payment during the 3-D flow,
// leaving no final authorization call for the merchant.
func (m SecurityModel) Settled() bool {
	return m == Model3DPay || m == Model3DPayHosting || m == Model3DHost
}

// Status is the canonical outcome of a gateway call.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusWaiting  Status = "waiting"
)

// Canonical status details. Gateways map their own codes onto these.
const (
	DetailApproved                = "approved"
	DetailBankCall                = "bank_call"
	DetailReject                  = "reject"
	DetailTryAgain                = "try_again"
	DetailInvalidTransaction      = "invalid_transaction"
	DetailInsufficientBalance     = "insufficient_balance"
	DetailExpiredCard             = "expired_card"
	DetailDoesNotAllowCardHolder  = "does_not_allow_card_holder"
	DetailRestrictedCard          = "restricted_card"
	DetailRequestRejected         = "request_rejected"
	DetailGeneralError            = "general_error"
	Detail3DAuthFailed            = "3d_auth_failed"
	DetailInvalidCredentials      = "invalid_credentials"
	DetailTransactionNotFound     = "transaction_not_found"
	DetailAlreadyCancelled        = "already_cancelled"
	DetailSecurityRejected        = "security_rejected"
	DetailNotEnrolled             = "not_enrolled"
	DetailUnknownTransactionState = "unknown"
)

// Canonical order statuses reported by status and history queries.
const (
	OrderStatusPaymentCompleted  = "PAYMENT_COMPLETED"
	OrderStatusPaymentPending    = "PAYMENT_PENDING"
	OrderStatusPreAuthCompleted  = "PRE_AUTH_COMPLETED"
	OrderStatusCanceled          = "CANCELED"
	OrderStatusFullyRefunded     = "FULLY_REFUNDED"
	OrderStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
	OrderStatusError             = "ERROR"
)

// PreSignHook lets a merchant adjust a request before it is signed. It runs
// after every other field is final and before the signature is computed.
type PreSignHook func(txType TransactionType, req GatewayRequest) error

// Account holds merchant credentials for one gateway. It is built once and
// must not be modified afterwards; mappers only read from it.
type Account struct {
	Gateway    string          `json:"gateway" validate:"required"`
	MerchantID string          `json:"merchant_id" validate:"required"`
	TerminalID string          `json:"terminal_id,omitempty"`
	CustomerID string          `json:"customer_id,omitempty"`
	Username   string          `json:"username,omitempty"`
	Password   string          `json:"-"`
	StoreKey   string          `json:"-"`
	Models     []SecurityModel `json:"models" validate:"required,min=1"`
	Lang       string          `json:"lang,omitempty"`
	TestMode   bool            `json:"test_mode"`

	// Garanti-style gateways refund and cancel with a separate user.
	RefundUsername string `json:"refund_username,omitempty"`
	RefundPassword string `json:"-"`

	// Optional endpoint overrides; adapters fall back to their defaults.
	APIURL     string `json:"api_url,omitempty" validate:"omitempty,url"`
	GatewayURL string `json:"gateway_url,omitempty" validate:"omitempty,url"`
	QueryURL   string `json:"query_url,omitempty" validate:"omitempty,url"`

	PreSign PreSignHook `json:"-"`
}

// Supports reports whether the account is enabled for the security model.
func (a *Account) Supports(model SecurityModel) bool {
	for _, m := range a.Models {
		if m == model {
			return true
		}
	}
	return false
}

// String never prints secrets.
func (a *Account) String() string {
	return fmt.Sprintf("Account{gateway=%s merchant=%s terminal=%s test=%t}", a.Gateway, a.MerchantID, a.TerminalID, a.TestMode)
}

// Recurring describes a bank-side recurring payment plan.
type Recurring struct {
	Frequency        int    `json:"frequency" validate:"gte=1"`
	FrequencyType    string `json:"frequency_type" validate:"oneof=DAY WEEK MONTH YEAR"`
	InstallmentCount int    `json:"installment_count" validate:"gte=2"`
}

// Order is the merchant's view of a purchase. Amount is always in major
// units with at most two fractional digits.
type Order struct {
	ID          string          `json:"id" validate:"required,max=64"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	Installment int             `json:"installment,omitempty" validate:"gte=0,lte=99"`
	IP          string          `json:"ip,omitempty" validate:"omitempty,ip"`
	Email       string          `json:"email,omitempty" validate:"omitempty,email"`
	SuccessURL  string          `json:"success_url,omitempty" validate:"omitempty,url"`
	FailURL     string          `json:"fail_url,omitempty" validate:"omitempty,url"`
	Lang        string          `json:"lang,omitempty"`

	// Fields referencing an earlier transaction, used by cancel, refund,
	// status and post-auth requests.
	RefRetNum       string    `json:"ref_ret_num,omitempty"`
	RemoteOrderID   string    `json:"remote_order_id,omitempty"`
	AuthCode        string    `json:"auth_code,omitempty"`
	TransactionID   string    `json:"transaction_id,omitempty"`
	TransactionTime time.Time `json:"transaction_time,omitempty"`

	// Original amount of the payment being partially refunded.
	OrderAmount decimal.Decimal `json:"order_amount,omitempty"`

	Recurring *Recurring `json:"recurring,omitempty"`
}

// CurrencyOrDefault returns the order currency, TRY when empty.
func (o Order) CurrencyOrDefault() string {
	if o.Currency == "" {
		return "TRY"
	}
	return strings.ToUpper(o.Currency)
}

// CardBrand identifies a card scheme.
type CardBrand string

const (
	CardVisa       CardBrand = "visa"
	CardMasterCard CardBrand = "master"
	CardAmex       CardBrand = "amex"
	CardTroy       CardBrand = "troy"
)

// CreditCard is card holder data. It is never logged or persisted; String
// and MarshalJSON expose the masked number only.
type CreditCard struct {
	Number      string
	ExpireYear  int
	ExpireMonth int
	CVV         string
	HolderName  string
	Brand       CardBrand
}

// NewCreditCard normalizes the number and checks the basic shape.
func NewCreditCard(number string, expireYear, expireMonth int, cvv, holder string, brand CardBrand) (*CreditCard, error) {
	number = strings.NewReplacer(" ", "", "-", "").Replace(number)
	if len(number) < 12 || len(number) > 19 || strings.Trim(number, "0123456789") != "" {
		return nil, &ValidationError{Field: "card.number", Reason: "must be 12-19 digits"}
	}
	if expireMonth < 1 || expireMonth > 12 {
		return nil, &ValidationError{Field: "card.expire_month", Reason: "must be between 1 and 12"}
	}
	if expireYear < 100 {
		expireYear += 2000
	}
	if cvv != "" && (len(cvv) < 3 || len(cvv) > 4 || strings.Trim(cvv, "0123456789") != "") {
		return nil, &ValidationError{Field: "card.cvv", Reason: "must be 3 or 4 digits"}
	}
	return &CreditCard{
		Number:      number,
		ExpireYear:  expireYear,
		ExpireMonth: expireMonth,
		CVV:         cvv,
		HolderName:  holder,
		Brand:       brand,
	}, nil
}

// ExpMonth returns the two digit expiry month.
func (c *CreditCard) ExpMonth() string { return fmt.Sprintf("%02d", c.ExpireMonth) }

// ExpYear2 returns the two digit expiry year.
func (c *CreditCard) ExpYear2() string { return fmt.Sprintf("%02d", c.ExpireYear%100) }

// ExpYear4 returns the four digit expiry year.
func (c *CreditCard) ExpYear4() string { return fmt.Sprintf("%04d", c.ExpireYear) }

// Masked returns the number with everything but the first six and last
// four digits hidden.
func (c *CreditCard) Masked() string {
	return MaskCardNumber(c.Number)
}

func (c *CreditCard) String() string {
	return fmt.Sprintf("CreditCard{%s %s/%s}", c.Masked(), c.ExpMonth(), c.ExpYear2())
}

func (c *CreditCard) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"number": c.Masked(),
		"holder": c.HolderName,
		"brand":  string(c.Brand),
	})
}

// GatewayRequest is the gateway-specific request before transport encoding.
type GatewayRequest map[string]any

// GatewayResponse is a decoded gateway response or 3-D callback payload.
type GatewayResponse map[string]any

// SecurityFields carries 3-D Secure authentication results.
type SecurityFields struct {
	MdStatus            string `json:"md_status,omitempty"`
	MdErrorMessage      string `json:"md_error_message,omitempty"`
	ECI                 string `json:"eci,omitempty"`
	CAVV                string `json:"cavv,omitempty"`
	TxStatus            string `json:"tx_status,omitempty"`
	TransactionSecurity string `json:"transaction_security,omitempty"`
}

// Result is the canonical response every gateway response is mapped to.
// It never carries credentials or full card data.
type Result struct {
	OrderID         string          `json:"order_id,omitempty"`
	RemoteOrderID   string          `json:"remote_order_id,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	AuthCode        string          `json:"auth_code,omitempty"`
	RefRetNum       string          `json:"ref_ret_num,omitempty"`
	BatchNum        string          `json:"batch_num,omitempty"`
	ProcReturnCode  string          `json:"proc_return_code,omitempty"`
	Status          Status          `json:"status"`
	StatusDetail    string          `json:"status_detail,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	TransactionType TransactionType `json:"transaction_type,omitempty"`
	PaymentModel    SecurityModel   `json:"payment_model,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
	Installment     int             `json:"installment,omitempty"`
	OrderStatus     string          `json:"order_status,omitempty"`
	TransactionTime *time.Time      `json:"transaction_time,omitempty"`
	Security        SecurityFields  `json:"security"`
	Transactions    []Result        `json:"transactions,omitempty"`
	Extra           GatewayResponse `json:"extra,omitempty"`
}

// Approved reports whether the gateway accepted the transaction.
func (r *Result) Approved() bool { return r.Status == StatusApproved }

// NewResult returns a declined result seeded from the order. Mappers start
// from it and only upgrade the status on positive gateway evidence.
func NewResult(order Order, txType TransactionType, model SecurityModel, raw GatewayResponse) Result {
	return Result{
		OrderID:         order.ID,
		Status:          StatusDeclined,
		StatusDetail:    DetailGeneralError,
		TransactionType: txType,
		PaymentModel:    model,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Installment:     order.Installment,
		Extra:           ScrubResponse(raw),
	}
}
