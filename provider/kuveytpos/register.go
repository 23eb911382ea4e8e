package kuveytpos

import "github.com/mstgnz/gopos/provider"

func init() {
	provider.Register(gatewayName, func() provider.Gateway { return New() },
		provider.FieldMerchantID, provider.FieldCustomerID, provider.FieldUsername, provider.FieldPassword)
}
