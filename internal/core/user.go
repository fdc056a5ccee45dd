package core

// User is an operator allowed to sign in to the dashboard.
// Passwords are kept in plain text, as the stored user list always has.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Validate requires every field to be filled.
func (u User) Validate() error {
	if u.Name == "" || u.Login == "" || u.Password == "" {
		return ErrMissingUserFields
	}
	return nil
}

// DefaultUsers is the directory used when nothing has been stored yet.
func DefaultUsers() []User {
	return []User{{ID: 1, Name: "Administrador", Login: "admin", Password: "admin"}}
}
