package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountEncoding is how a gateway writes amounts on the wire.
type AmountEncoding int

const (
	AmountDotDecimal   AmountEncoding = iota // "1.01"
	AmountCommaDecimal                       // "1,01"
	AmountMinorUnits                         // "101"
)

// AnyModel is the TxTypes key used when a code does not depend on the
// security model.
const AnyModel SecurityModel = "*"

// InstallmentPolicy is how a gateway writes the installment count.
// Counts of 0 and 1 both mean "no installment" and are written as None.
type InstallmentPolicy struct {
	None  string
	Width int
}

// ValueMapper translates canonical values to one gateway's codes. Each
// adapter builds one at package init and never modifies it.
type ValueMapper struct {
	Gateway     string
	Currencies  map[string]string
	TxTypes     map[TransactionType]map[SecurityModel]string
	CardBrands  map[CardBrand]string
	Langs       map[string]string
	SecureTypes map[SecurityModel]string
	Installment InstallmentPolicy
	Amount      AmountEncoding
	// DateLayouts maps a field name to its time layout; "" is the default.
	DateLayouts map[string]string
	DefaultLang string
}

// MapCurrency returns the gateway currency code, or the input unchanged
// when the gateway has no mapping for it.
func (m ValueMapper) MapCurrency(currency string) string {
	if currency == "" {
		currency = "TRY"
	}
	if code, ok := m.Currencies[strings.ToUpper(currency)]; ok {
		return code
	}
	return currency
}

// CurrencyFromCode reverses MapCurrency.
func (m ValueMapper) CurrencyFromCode(code string) string {
	for iso, c := range m.Currencies {
		if c == code {
			return iso
		}
	}
	return code
}

// MapTxType returns the gateway code for the pair. A model-specific entry
// wins over the AnyModel entry.
func (m ValueMapper) MapTxType(txType TransactionType, model SecurityModel) (string, error) {
	byModel, ok := m.TxTypes[txType]
	if !ok {
		return "", UnsupportedTxType(m.Gateway, txType, model)
	}
	if code, ok := byModel[model]; ok {
		return code, nil
	}
	if code, ok := byModel[AnyModel]; ok {
		return code, nil
	}
	return "", UnsupportedTxType(m.Gateway, txType, model)
}

// TxTypeFromCode reverses MapTxType. Unknown codes yield "".
func (m ValueMapper) TxTypeFromCode(code string) TransactionType {
	for _, tx := range []TransactionType{TxTypePay, TxTypePreAuth, TxTypePostAuth, TxTypeCancel, TxTypeRefund} {
		for _, c := range m.TxTypes[tx] {
			if c == code {
				return tx
			}
		}
	}
	return ""
}

// MapInstallment formats an installment count.
func (m ValueMapper) MapInstallment(count int) string {
	if count <= 1 {
		return m.Installment.None
	}
	if m.Installment.Width > 0 {
		return fmt.Sprintf("%0*d", m.Installment.Width, count)
	}
	return fmt.Sprintf("%d", count)
}

// FormatAmount writes an amount in the gateway encoding, rounded half-up
// to two fractional digits.
func (m ValueMapper) FormatAmount(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	switch m.Amount {
	case AmountMinorUnits:
		return rounded.Shift(2).StringFixed(0)
	case AmountCommaDecimal:
		return strings.Replace(rounded.StringFixed(2), ".", ",", 1)
	default:
		return rounded.StringFixed(2)
	}
}

// ParseAmount reads an amount written in the gateway encoding.
func (m ValueMapper) ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	switch m.Amount {
	case AmountMinorUnits:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: invalid amount %q: %w", m.Gateway, s, err)
		}
		return d.Shift(-2), nil
	case AmountCommaDecimal:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q: %w", m.Gateway, s, err)
	}
	return d, nil
}

// FormatDateTime formats t with the layout declared for field.
func (m ValueMapper) FormatDateTime(t time.Time, field string) string {
	layout, ok := m.DateLayouts[field]
	if !ok {
		layout, ok = m.DateLayouts[""]
	}
	if !ok {
		layout = "2006-01-02 15:04:05"
	}
	return t.Format(layout)
}

// ParseDateTime parses s with the layout declared for field.
func (m ValueMapper) ParseDateTime(s, field string) (time.Time, error) {
	layout, ok := m.DateLayouts[field]
	if !ok {
		layout, ok = m.DateLayouts[""]
	}
	if !ok {
		layout = "2006-01-02 15:04:05"
	}
	return time.ParseInLocation(layout, s, time.Local)
}

// MapCardBrand returns the gateway card type code, "" when unmapped.
func (m ValueMapper) MapCardBrand(brand CardBrand) string {
	return m.CardBrands[brand]
}

// MapLang returns the gateway language code, falling back to DefaultLang.
func (m ValueMapper) MapLang(lang string) string {
	if code, ok := m.Langs[strings.ToLower(lang)]; ok {
		return code
	}
	return m.DefaultLang
}

// MapSecureType returns the gateway name of the security model.
func (m ValueMapper) MapSecureType(model SecurityModel) (string, error) {
	if code, ok := m.SecureTypes[model]; ok {
		return code, nil
	}
	return "", fmt.Errorf("%s: %w: security model %s", m.Gateway, ErrUnsupportedTransactionType, model)
}
