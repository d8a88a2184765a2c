package dtos

type CreateProductRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	NameEn      string  `json:"name_en" binding:"max=100"`
	Description string  `json:"description" binding:"max=500"`
	Category    string  `json:"category" binding:"required,oneof=hot_drinks cold_drinks desserts food other"`
	Subcategory string  `json:"subcategory" binding:"max=50"`
	Price       float64 `json:"price" binding:"gte=0"`
	PointsPrice int     `json:"points_price" binding:"gte=0"`
	ImageURL    string  `json:"image_url" binding:"omitempty,url"`
	IsAvailable *bool   `json:"is_available"`
	IsFeatured  bool    `json:"is_featured"`
	Stock       *int    `json:"stock" binding:"omitempty,gte=-1"`
}

type UpdateProductRequest struct {
	Name        *string  `json:"name" binding:"omitempty,max=100"`
	NameEn      *string  `json:"name_en" binding:"omitempty,max=100"`
	Description *string  `json:"description" binding:"omitempty,max=500"`
	Category    *string  `json:"category" binding:"omitempty,oneof=hot_drinks cold_drinks desserts food other"`
	Subcategory *string  `json:"subcategory" binding:"omitempty,max=50"`
	Price       *float64 `json:"price" binding:"omitempty,gte=0"`
	PointsPrice *int     `json:"points_price" binding:"omitempty,gte=0"`
	IsAvailable *bool    `json:"is_available"`
	IsFeatured  *bool    `json:"is_featured"`
	Stock       *int     `json:"stock" binding:"omitempty,gte=-1"`
}

type RateProductRequest struct {
	Rating int `json:"rating" binding:"required,gte=1,lte=5"`
}

type RecordSaleRequest struct {
	Quantity int `json:"quantity" binding:"required,gte=1"`
}

// ProductImageURLRequest asks the server to copy a remote image into the bucket.
type ProductImageURLRequest struct {
	ImageURL string `json:"image_url" binding:"required,url"`
}
