package utils

import (
	"errors"
	"fmt"
	"mime/multipart"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ProductImageTypes are the photo formats accepted for menu items.
var ProductImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// MaxProductImageSize caps a product photo upload at 5MB.
const MaxProductImageSize = 5 << 20

var (
	ErrImageTooLarge = errors.New("product image exceeds 5MB")
	ErrImageType     = errors.New("product image must be a JPEG, PNG or WebP file")
)

// ValidateProductImage checks a product photo's declared type and size.
func ValidateProductImage(fh *multipart.FileHeader) error {
	if fh.Size > MaxProductImageSize {
		return fmt.Errorf("%w (got %d bytes)", ErrImageTooLarge, fh.Size)
	}
	if contentType := fh.Header.Get("Content-Type"); !ProductImageTypes[contentType] {
		return fmt.Errorf("%w (got %q)", ErrImageType, contentType)
	}
	return nil
}

// UseJSONFieldNames makes v report fields by their json tag, so errors name
// "points_to_redeem" rather than PointsToRedeem.
func UseJSONFieldNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// RegisterValidation applies UseJSONFieldNames to gin's request binder.
func RegisterValidation() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		UseJSONFieldNames(v)
	}
}

// FieldErrors turns a binding failure into a field -> message map. Anything
// that is not a validation error (bad JSON, wrong types) is reported under
// "body".
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"body": "request body is not valid JSON for this endpoint"}
	}

	out := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		field := fieldPath(fe)
		if _, seen := out[field]; seen {
			continue
		}
		out[field] = fieldMessage(fe)
	}
	return out
}

// fieldPath drops the root struct name: "CreateOrderRequest.items[0].name"
// becomes "items[0].name".
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid id"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "gte", "gt":
		return "must be at least " + bound(fe)
	case "max", "lte", "lt":
		return "must be at most " + bound(fe)
	case "dive":
		return "contains an invalid entry"
	default:
		return "is invalid"
	}
}

// bound phrases a min/max parameter for the field's kind.
func bound(fe validator.FieldError) string {
	switch fe.Kind() {
	case reflect.String:
		return fe.Param() + " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return fe.Param() + " items"
	default:
		return fe.Param()
	}
}
