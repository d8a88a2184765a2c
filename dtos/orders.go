package dtos

type OrderItemRequest struct {
	ProductID   string  `json:"product_id" binding:"omitempty,uuid"`
	Name        string  `json:"name" binding:"required"`
	Category    string  `json:"category"`
	Price       float64 `json:"price" binding:"gte=0"`
	PointsPrice int     `json:"points_price" binding:"gte=0"`
	Quantity    int     `json:"quantity" binding:"required,gte=1"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	OrderType       string             `json:"order_type" binding:"required,oneof=dine_in takeaway delivery"`
	PaymentMethod   string             `json:"payment_method" binding:"required,oneof=points cash card mixed"`
	PointsUsed      int                `json:"points_used" binding:"gte=0"`
	DeliveryAddress string             `json:"delivery_address"`
	DeliveryFee     float64            `json:"delivery_fee" binding:"gte=0"`
	Discount        float64            `json:"discount" binding:"gte=0"`
	CustomerPhone   string             `json:"customer_phone" binding:"max=20"`
	Notes           string             `json:"notes" binding:"max=500"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed preparing ready completed cancelled"`
}

type OrderFeedbackRequest struct {
	Rating  int    `json:"rating" binding:"required,gte=1,lte=5"`
	Comment string `json:"comment" binding:"max=500"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}
