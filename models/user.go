package models

import "time"

// bcrypt rejects passwords longer than 72 bytes.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

// User is an operator account allowed to query the session API.
type User struct {
	ID             int       `db:"id"`
	Email          string    `db:"email"`
	HashedPassword []byte    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Profile is what an authenticated operator sees about themselves.
type Profile struct {
	UserID    int    `json:"user_id"`
	Email     string `json:"user_email"`
	IPAddress string `json:"ip_address"`
}
