package types

// EmailMapping maps a scrypt-hashed email address to a user ID so share
// recipients can be resolved without the server storing emails in the clear.
// Document ID is the hashed email.
type EmailMapping struct {
	BaseDocument `json:",inline"`
	HashedEmail  string `json:"hashedEmail"`
	UserID       string `json:"userId"`
}
