package customers

// Customer is a buyer keyed by phone number.
type Customer struct {
	ID          int64  `json:"id"`
	Name        string `json:"name" validate:"max=200"`
	Phone       string `json:"phone" validate:"required,max=32"`
	Email       string `json:"email" validate:"omitempty,email"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
	Created     string `json:"created"`
	LastUpdated string `json:"last_updated"`
}
