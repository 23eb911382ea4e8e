package estpos

import "github.com/mstgnz/gopos/provider"

func init() {
	fields := []provider.ConfigField{provider.FieldMerchantID, provider.FieldUsername, provider.FieldPassword, provider.FieldStoreKey}
	provider.Register("estpos", func() provider.Gateway { return New(V1) }, fields...)
	provider.Register("estpos_v3", func() provider.Gateway { return New(V3) }, fields...)
}
