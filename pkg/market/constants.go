package market

const (
	operationSetCreditPrice   = "set_credit_price"
	operationSetFeePercent    = "set_fee_percent"
	operationSetRefundPercent = "set_refund_percent"
	operationSetReserveLimit  = "set_reserve_limit"
	operationAddForSale       = "add_for_sale"
	operationRemoveFromSale   = "remove_from_sale"
	operationBuyFromSeller    = "buy_from_seller"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	percentScale         int64 = 100
	maxPercent           int64 = 100
	defaultCreditPrice   int64 = 100
	defaultFeePercent    int64 = 5
	defaultRefundPercent int64 = 90
	defaultReserveLimit  int64 = 1_000_000
)
