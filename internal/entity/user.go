package entity

// UserLoginData is the caller identity taken from a verified access token.
type UserLoginData struct {
	ID       string
	Username string
	Email    string
}
