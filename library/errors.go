package library

import "errors"

var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrDocumentBorrowed      = errors.New("document is currently borrowed")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserExists            = errors.New("user already exists")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInsufficientStock     = errors.New("not enough copies available")
	ErrReturnExceedsBorrowed = errors.New("cannot return more than borrowed")
	ErrInvalidRating         = errors.New("rating must be between 1 and 5")
	ErrAccountExists         = errors.New("account already exists")
	ErrInvalidCredentials    = errors.New("invalid username or password")
	ErrEmptyField            = errors.New("required field is empty")
)
