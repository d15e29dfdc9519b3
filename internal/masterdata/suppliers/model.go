package suppliers

// Supplier represents a supplier entity
type Supplier struct {
	ID            int64  `json:"id"`
	Name          string `json:"name" validate:"required,max=200"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address"`
	Notes         string `json:"notes"`
	Created       string `json:"created"`
	LastUpdated   string `json:"last_updated"`
}
