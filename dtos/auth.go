package dtos

type FirebaseLoginRequest struct {
	IDToken  string `json:"id_token" binding:"required"`
	Provider string `json:"provider" binding:"omitempty,oneof=google.com twitter.com email"`
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"display_name" binding:"required,min=2,max=50"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	Token string `json:"token" binding:"required"`
}
