package resputil

type ErrorCode int

const (
	OK ErrorCode = 0

	// General
	InvalidRequest ErrorCode = 40001

	// Token
	TokenExpired ErrorCode = 40101
	TokenInvalid ErrorCode = 40102

	// User is not allowed to access the resource
	UserNotAllowed ErrorCode = 40301
	// User does not belong to any active company
	UserNotAttached ErrorCode = 40302

	// Request is missing or outside the user's visibility
	NotFound ErrorCode = 40401

	// Lifecycle
	InvalidTransition      ErrorCode = 40901
	ConcurrentModification ErrorCode = 40902

	// Indicates laziness of the developer
	// Frontend will directly print the message without any translation
	NotSpecified ErrorCode = 99999
)
