package auth

// Account is the credential view of a user.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	RoleName     string
	IsActive     bool
}

// LoginInput carries user credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}
