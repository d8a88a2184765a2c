package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"noircafe-backend/dtos"
	"noircafe-backend/firebase"
	"noircafe-backend/models"
	"noircafe-backend/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultProductPage     = 20
	maxProductPage         = 100
	defaultShowcaseSize    = 10
	defaultCategoryListing = 50
)

type ProductHandler struct {
	DB      *gorm.DB
	Storage firebase.StorageClient
	Logger  *zap.Logger
}

func productSort(sort string) string {
	switch sort {
	case "price_low":
		return "price ASC"
	case "price_high":
		return "price DESC"
	case "popular":
		return "sales_count DESC"
	case "rating":
		return "rating_average DESC"
	default:
		return "name ASC"
	}
}

func limitParam(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		return def
	}
	if limit > maxProductPage {
		return maxProductPage
	}
	return limit
}

func (h *ProductHandler) GetProducts(c *gin.Context) {
	page, limit, ok := pageParams(c, defaultProductPage, maxProductPage)
	if !ok {
		return
	}

	query := h.DB.WithContext(c.Request.Context()).Model(&models.Product{})
	if c.Query("show_all") != "true" {
		query = query.Where("is_available = ?", true)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if c.Query("featured") == "true" {
		query = query.Where("is_featured = ?", true)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(name_en) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}
	if minPrice, err := strconv.ParseFloat(c.Query("min_price"), 64); err == nil {
		query = query.Where("price >= ?", minPrice)
	}
	if maxPrice, err := strconv.ParseFloat(c.Query("max_price"), 64); err == nil {
		query = query.Where("price <= ?", maxPrice)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch products", err)
		return
	}

	var products []models.Product
	if err := query.Order(productSort(c.Query("sort"))).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&products).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch products", err)
		return
	}

	utils.Success(c, http.StatusOK, "", gin.H{
		"products":   products,
		"pagination": newPagination(page, limit, total),
	})
}

func (h *ProductHandler) GetFeatured(c *gin.Context) {
	var products []models.Product
	if err := h.DB.WithContext(c.Request.Context()).
		Where("is_featured = ? AND is_available = ?", true, true).
		Order("sales_count DESC").
		Limit(limitParam(c, defaultShowcaseSize)).
		Find(&products).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch featured products", err)
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"products": products})
}

func (h *ProductHandler) GetBestsellers(c *gin.Context) {
	var products []models.Product
	if err := h.DB.WithContext(c.Request.Context()).
		Where("is_available = ? AND sales_count > 0", true).
		Order("sales_count DESC").
		Limit(limitParam(c, defaultShowcaseSize)).
		Find(&products).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch bestsellers", err)
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"products": products})
}

func (h *ProductHandler) GetByCategory(c *gin.Context) {
	category := c.Param("category")
	if !models.IsValidCategory(category) {
		utils.Error(c, http.StatusBadRequest, "Invalid category", nil)
		return
	}

	var products []models.Product
	if err := h.DB.WithContext(c.Request.Context()).
		Where("category = ? AND is_available = ?", category, true).
		Order(productSort(c.Query("sort"))).
		Limit(limitParam(c, defaultCategoryListing)).
		Find(&products).Error; err != nil {
		serverError(c, h.Logger, "Failed to fetch products", err)
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"category": category, "products": products})
}

func (h *ProductHandler) findProduct(c *gin.Context) (*models.Product, bool) {
	var product models.Product
	err := h.DB.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(c, http.StatusNotFound, "Product not found", nil)
		return nil, false
	}
	if err != nil {
		serverError(c, h.Logger, "Failed to fetch product", err)
		return nil, false
	}
	return &product, true
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, ok := h.findProduct(c)
	if !ok {
		return
	}
	utils.Success(c, http.StatusOK, "", gin.H{"product": product})
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req dtos.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Price == 0 && req.PointsPrice == 0 {
		utils.Error(c, http.StatusBadRequest, "A product needs a price or a points price", nil)
		return
	}

	product := models.Product{
		Name:        req.Name,
		NameEn:      req.NameEn,
		Description: req.Description,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Price:       req.Price,
		PointsPrice: req.PointsPrice,
		ImageURL:    req.ImageURL,
		IsAvailable: true,
		IsFeatured:  req.IsFeatured,
		Stock:       models.UntrackedStock,
	}
	if req.IsAvailable != nil {
		product.IsAvailable = *req.IsAvailable
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}

	if err := h.DB.WithContext(c.Request.Context()).Create(&product).Error; err != nil {
		serverError(c, h.Logger, "Failed to create product", err)
		return
	}
	utils.Success(c, http.StatusCreated, "Product created", gin.H{"product": product})
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	var req dtos.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, ok := h.findProduct(c)
	if !ok {
		return
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.NameEn != nil {
		product.NameEn = *req.NameEn
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.Subcategory != nil {
		product.Subcategory = *req.Subcategory
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.PointsPrice != nil {
		product.PointsPrice = *req.PointsPrice
	}
	if req.IsAvailable != nil {
		product.IsAvailable = *req.IsAvailable
	}
	if req.IsFeatured != nil {
		product.IsFeatured = *req.IsFeatured
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}

	if err := h.DB.WithContext(c.Request.Context()).Save(product).Error; err != nil {
		serverError(c, h.Logger, "Failed to update product", err)
		return
	}
	utils.Success(c, http.StatusOK, "Product updated", gin.H{"product": product})
}

// DeleteProduct soft-deletes the product and removes its bucket image.
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	product, ok := h.findProduct(c)
	if !ok {
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Delete(product).Error; err != nil {
		serverError(c, h.Logger, "Failed to delete product", err)
		return
	}
	h.removeStoredImage(c, product.ImageURL)
	utils.Success(c, http.StatusOK, "Product deleted", nil)
}

// UploadImage replaces the product image with either a multipart "image"
// file or a JSON image_url that is copied into the bucket.
func (h *ProductHandler) UploadImage(c *gin.Context) {
	if h.Storage == nil {
		utils.Error(c, http.StatusServiceUnavailable, "Image storage is not configured", nil)
		return
	}

	product, ok := h.findProduct(c)
	if !ok {
		return
	}

	var imageURL string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("image")
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "image file is required", nil)
			return
		}
		if err := utils.ValidateProductImage(fileHeader); err != nil {
			utils.Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "Invalid image", nil)
			return
		}
		imageURL, err = h.Storage.UploadProductImage(c.Request.Context(), file, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
		file.Close()
		if err != nil {
			serverError(c, h.Logger, "Image upload failed", err)
			return
		}
	} else {
		var req dtos.ProductImageURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		var err error
		imageURL, err = h.Storage.MirrorImage(c.Request.Context(), req.ImageURL, product.ID.String())
		if err != nil {
			loggerOrGlobal(h.Logger).Warn("image mirror failed", zap.String("url", req.ImageURL), zap.Error(err))
			utils.Error(c, http.StatusBadRequest, "Could not import image from URL", nil)
			return
		}
	}

	previous := product.ImageURL
	product.ImageURL = imageURL
	if err := h.DB.WithContext(c.Request.Context()).Model(product).Update("image_url", imageURL).Error; err != nil {
		serverError(c, h.Logger, "Failed to save product image", err)
		return
	}
	if previous != imageURL {
		h.removeStoredImage(c, previous)
	}

	utils.Success(c, http.StatusOK, "Product image updated", gin.H{"product": product})
}

func (h *ProductHandler) removeStoredImage(c *gin.Context, imageURL string) {
	if h.Storage == nil || !utils.IsStorageURL(imageURL) {
		return
	}
	objectPath, err := utils.ExtractObjectPath(imageURL)
	if err != nil || objectPath == "" {
		return
	}
	if err := h.Storage.DeleteFile(c.Request.Context(), objectPath); err != nil {
		loggerOrGlobal(h.Logger).Warn("failed to delete product image", zap.String("object", objectPath), zap.Error(err))
	}
}

func (h *ProductHandler) RateProduct(c *gin.Context) {
	var req dtos.RateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var product models.Product
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", c.Param("id")).First(&product).Error; err != nil {
			return err
		}
		product.AddRating(req.Rating)
		return tx.Model(&product).Select("rating_average", "rating_count").Updates(&product).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(c, http.StatusNotFound, "Product not found", nil)
		return
	}
	if err != nil {
		serverError(c, h.Logger, "Failed to rate product", err)
		return
	}

	utils.Success(c, http.StatusOK, "Rating added", gin.H{
		"rating_average": product.RatingAverage,
		"rating_count":   product.RatingCount,
	})
}

// RecordSale books a counter sale against the product's sales figures and stock.
func (h *ProductHandler) RecordSale(c *gin.Context) {
	var req dtos.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var product models.Product
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", c.Param("id")).First(&product).Error; err != nil {
			return err
		}
		product.RecordSale(req.Quantity)
		return tx.Model(&product).Select("sales_count", "revenue", "stock").Updates(&product).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(c, http.StatusNotFound, "Product not found", nil)
		return
	}
	if err != nil {
		serverError(c, h.Logger, "Failed to record sale", err)
		return
	}

	utils.Success(c, http.StatusOK, "Sale recorded", gin.H{"product": product})
}
