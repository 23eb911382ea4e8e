package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ConfigField describes one account credential a gateway requires.
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`
	MinLength   int    `json:"minLength,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
}

// Common account fields shared by the gateway registrations.
var (
	FieldMerchantID = ConfigField{Key: "merchant_id", Required: true, Type: "string", Description: "Merchant / client ID", MinLength: 1, MaxLength: 64}
	FieldTerminalID = ConfigField{Key: "terminal_id", Required: true, Type: "number", Description: "Terminal ID", Pattern: `^[0-9]+$`, MaxLength: 16}
	FieldCustomerID = ConfigField{Key: "customer_id", Required: true, Type: "number", Description: "Customer number", Pattern: `^[0-9]+$`}
	FieldUsername   = ConfigField{Key: "username", Required: true, Type: "string", Description: "API user name", MinLength: 1}
	FieldPassword   = ConfigField{Key: "password", Required: true, Type: "string", Description: "API password", MinLength: 1}
	FieldStoreKey   = ConfigField{Key: "store_key", Required: true, Type: "string", Description: "3D store key / secret key", MinLength: 1}
)

// AccountConfig flattens an account into the keys ConfigField refers to.
func AccountConfig(acc *Account) map[string]string {
	return map[string]string{
		"merchant_id":     acc.MerchantID,
		"terminal_id":     acc.TerminalID,
		"customer_id":     acc.CustomerID,
		"username":        acc.Username,
		"password":        acc.Password,
		"store_key":       acc.StoreKey,
		"refund_username": acc.RefundUsername,
		"refund_password": acc.RefundPassword,
		"test_mode":       fmt.Sprintf("%t", acc.TestMode),
	}
}

// ValidateConfigFields validates configuration against provided field definitions
func ValidateConfigFields(gatewayName string, config map[string]string, requiredFields []ConfigField) error {
	for _, field := range requiredFields {
		if !field.Required {
			continue
		}

		value, exists := config[field.Key]
		if !exists {
			return fmt.Errorf("%s: required field '%s' is missing", gatewayName, field.Key)
		}

		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: required field '%s' cannot be empty", gatewayName, field.Key)
		}

		if err := validateFieldType(gatewayName, field, value); err != nil {
			return err
		}

		if err := validateFieldPattern(gatewayName, field, value); err != nil {
			return err
		}

		if err := validateFieldLength(gatewayName, field, value); err != nil {
			return err
		}
	}

	return nil
}

func validateFieldType(gatewayName string, field ConfigField, value string) error {
	switch field.Type {
	case "boolean":
		if value != "true" && value != "false" {
			return fmt.Errorf("%s: field '%s' must be 'true' or 'false'", gatewayName, field.Key)
		}
	case "url":
		if !strings.HasPrefix(value, "https://") && !strings.HasPrefix(value, "http://") {
			return fmt.Errorf("%s: field '%s' must be an http(s) URL", gatewayName, field.Key)
		}
	}
	return nil
}

func validateFieldPattern(gatewayName string, field ConfigField, value string) error {
	if field.Pattern == "" {
		return nil
	}

	matched, err := regexp.MatchString(field.Pattern, value)
	if err != nil {
		return fmt.Errorf("%s: invalid pattern for field '%s': %v", gatewayName, field.Key, err)
	}

	if !matched {
		return fmt.Errorf("%s: field '%s' does not match required pattern", gatewayName, field.Key)
	}

	return nil
}

func validateFieldLength(gatewayName string, field ConfigField, value string) error {
	if field.MinLength > 0 && len(value) < field.MinLength {
		return fmt.Errorf("%s: field '%s' must be at least %d characters", gatewayName, field.Key, field.MinLength)
	}

	if field.MaxLength > 0 && len(value) > field.MaxLength {
		return fmt.Errorf("%s: field '%s' must not exceed %d characters", gatewayName, field.Key, field.MaxLength)
	}

	return nil
}

var structValidator = validator.New()

// ValidateAccount checks the struct tags and the gateway's required fields.
func ValidateAccount(registry *GatewayRegistry, acc *Account) error {
	if err := structValidator.Struct(acc); err != nil {
		return toValidationError("account", err)
	}
	fields, err := registry.ConfigFields(acc.Gateway)
	if err != nil {
		return err
	}
	return ValidateConfigFields(acc.Gateway, AccountConfig(acc), fields)
}

// ValidateOrder checks the order fields needed by txType.
func ValidateOrder(order Order, txType TransactionType) error {
	if err := structValidator.Struct(order); err != nil {
		return toValidationError("order", err)
	}
	switch txType {
	case TxTypePay, TxTypePreAuth, TxTypeRefund, TxTypeRefundPartial:
		if !order.Amount.GreaterThan(decimal.Zero) {
			return &ValidationError{Field: "order.amount", Reason: "must be greater than zero"}
		}
		if !order.Amount.Equal(order.Amount.Round(2)) {
			return &ValidationError{Field: "order.amount", Reason: "at most two fractional digits"}
		}
	}
	if txType == TxTypeRefundPartial && order.OrderAmount.IsPositive() && order.Amount.GreaterThan(order.OrderAmount) {
		return &ValidationError{Field: "order.amount", Reason: "partial refund exceeds the order amount"}
	}
	return nil
}

// ValidateRedirectURLs checks the callback URLs needed by 3-D flows.
func ValidateRedirectURLs(order Order) error {
	if order.SuccessURL == "" {
		return &ValidationError{Field: "order.success_url", Reason: "required for 3D payments"}
	}
	if order.FailURL == "" {
		return &ValidationError{Field: "order.fail_url", Reason: "required for 3D payments"}
	}
	return nil
}

func toValidationError(prefix string, err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return &ValidationError{Field: prefix + "." + strings.ToLower(fe.Field()), Reason: fe.Tag()}
	}
	return &ValidationError{Field: prefix, Reason: err.Error()}
}
