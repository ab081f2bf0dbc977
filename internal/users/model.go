package users

import "time"

type State string

const (
	StateKid     State = "kid"
	StateStudent State = "student"
	StatePro     State = "pro"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	UserID       int64
	FirstName    string
	LastName     string
	Age          int
	State        State
	Username     string
	Email        string
	PasswordHash string
	Address      string
	Phone        string
	Role         Role
	IsSubscribed bool
	CreatedAt    time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
