package dtos

// UpdateProfileRequest carries the fields a user may change on their own
// profile. Nil fields are left untouched.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,min=2,max=50"`
	Phone       *string `json:"phone" binding:"omitempty,max=20"`
	Language    *string `json:"language" binding:"omitempty,oneof=ar en"`
}

type AdminUpdateUserRequest struct {
	Status *string `json:"status" binding:"omitempty,oneof=active suspended banned pending"`
	Role   *string `json:"role" binding:"omitempty,oneof=customer admin manager staff"`
}
