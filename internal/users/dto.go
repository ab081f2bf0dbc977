package users

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type RegisterRequest struct {
	FirstName    string `json:"fname" binding:"required"`
	LastName     string `json:"lname" binding:"required"`
	Age          int    `json:"age"`
	State        State  `json:"state" binding:"required"`
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	Role         *Role  `json:"role,omitempty"` // 未指定なら user
	IsSubscribed bool   `json:"is_subscribed"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Age, validation.Min(0), validation.Max(150)),
		validation.Field(&r.State, validation.Required, validation.In(StateKid, StateStudent, StatePro)),
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&r.Address, validation.Length(0, 255)),
		validation.Field(&r.Phone, validation.Length(0, 32)),
		validation.Field(&r.Role, validation.NilOrNotEmpty, validation.In(RoleAdmin, RoleUser)),
	)
}

type UserResponse struct {
	UserID       int64     `json:"user_id"`
	FirstName    string    `json:"fname"`
	LastName     string    `json:"lname"`
	Age          int       `json:"age"`
	State        State     `json:"state"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	IsSubscribed bool      `json:"is_subscribed"`
	CreatedAt    time.Time `json:"created_at"`
}

type ListResult struct {
	Items      []UserResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}

type DeleteResponse struct {
	UserID            int64 `json:"user_id"`
	Deleted           bool  `json:"deleted"`
	CancelledRequests int   `json:"cancelled_requests"`
}

func toResponse(u *User) UserResponse {
	return UserResponse{
		UserID:       u.UserID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Age:          u.Age,
		State:        u.State,
		Username:     u.Username,
		Email:        u.Email,
		Address:      u.Address,
		Phone:        u.Phone,
		Role:         u.Role,
		IsSubscribed: u.IsSubscribed,
		CreatedAt:    u.CreatedAt,
	}
}
