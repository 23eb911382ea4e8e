package akbank

import "github.com/mstgnz/gopos/provider"

func init() {
	provider.Register(gatewayName, func() provider.Gateway { return New() },
		fieldMerchantSafeID, fieldTerminalSafeID, fieldSecretKey)
}
