package reward

// RedeemRequest for POST /rewards/redeem
type RedeemRequest struct {
	Points         int    `json:"points" validate:"gt=0"`
	Method         string `json:"method" validate:"required,oneof=esewa khalti bank"`
	AccountDetails string `json:"account_details" validate:"required,max=200"`
}
