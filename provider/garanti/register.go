package garanti

import "github.com/mstgnz/gopos/provider"

func init() {
	provider.Register(gatewayName, func() provider.Gateway { return New() },
		provider.FieldMerchantID, provider.FieldTerminalID, provider.FieldUsername,
		provider.FieldPassword, provider.FieldStoreKey)
}
