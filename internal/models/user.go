package models

// Profile is the signed-in user's profile as stored remotely.
type Profile struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`

	// Role is "customer" until a driver or merchant registration is approved.
	Role string `json:"role"`
}

// ProfileUpdate carries the personal fields collected by a registration wizard.
// Empty fields are left unchanged.
type ProfileUpdate struct {
	FullName string
	Phone    string
}

// IsEmpty reports whether the update carries no fields.
func (u ProfileUpdate) IsEmpty() bool {
	return u.FullName == "" && u.Phone == ""
}
