package domain

import "time"

// User is the identity record returned by the auth endpoints.
type User struct {
	ID           string    `json:"_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Book is a single recommendation record. Immutable once fetched;
// deletion removes it from a feed by id.
type Book struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Rating      int       `json:"rating"`
	Image       string    `json:"image"`
	User        User      `json:"user"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AuthResponse is the body of a successful login or register call.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// BookPage is one page of a paginated book listing.
type BookPage struct {
	Books      []Book `json:"books"`
	TotalPages int    `json:"totalPages"`
}
