package dtos

// PurchasePointsRequest buys a points package for the caller.
type PurchasePointsRequest struct {
	PackagePoints int     `json:"package_points" binding:"required,gte=10,lte=1000"`
	PackagePrice  float64 `json:"package_price" binding:"required,gte=1"`
	PaymentMethod string  `json:"payment_method" binding:"required,oneof=card cash online"`
}

type RedeemItem struct {
	Name        string `json:"name" binding:"required"`
	Quantity    int    `json:"quantity" binding:"omitempty,gte=1"`
	PointsPrice int    `json:"points_price" binding:"gte=0"`
}

type RedeemPointsRequest struct {
	PointsToRedeem int          `json:"points_to_redeem" binding:"required,gte=1"`
	Items          []RedeemItem `json:"items" binding:"required,min=1,dive"`
	OrderNumber    string       `json:"order_number"`
}

// AddPointsRequest credits a user. Source defaults to admin.
type AddPointsRequest struct {
	UserUID      string `json:"user_uid" binding:"required"`
	Points       int    `json:"points" binding:"required,gte=1"`
	Reason       string `json:"reason" binding:"required,max=200"`
	Source       string `json:"source" binding:"omitempty,oneof=purchase bonus admin promotion refund"`
	AdminNote    string `json:"admin_note"`
	RelatedOrder string `json:"related_order"`
}

type DeductPointsRequest struct {
	UserUID   string `json:"user_uid" binding:"required"`
	Points    int    `json:"points" binding:"required,gte=1"`
	Reason    string `json:"reason" binding:"required,max=200"`
	AdminNote string `json:"admin_note"`
}

type ReverseTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type FailTransactionRequest struct {
	Message string `json:"message" binding:"required"`
}

type FlagTransactionRequest struct {
	Reason     string `json:"reason" binding:"required,max=200"`
	FraudScore int    `json:"fraud_score" binding:"omitempty,min=0,max=100"`
}

type ReviewTransactionRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Note    string `json:"note" binding:"max=200"`
}
