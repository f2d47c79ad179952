package errs

const (
	ServerInternalError = 500

	AuthError          = 1001 // missing, invalid or expired credential
	TokenExpiredError  = 1002
	ValidationError    = 1101 // malformed event payload
	AuthorizationError = 1201 // caller may not act on the resource
	RecordNotFound     = 1301
	RecordIsExist      = 1302
	StorageError       = 1401
)

var (
	ErrInternal      = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrAuth          = NewCodeError(AuthError, "AuthError")
	ErrTokenExpired  = NewCodeError(TokenExpiredError, "TokenExpired")
	ErrValidation    = NewCodeError(ValidationError, "ValidationError")
	ErrForbidden     = NewCodeError(AuthorizationError, "AuthorizationError")
	ErrNotFound      = NewCodeError(RecordNotFound, "RecordNotFound")
	ErrRecordIsExist = NewCodeError(RecordIsExist, "RecordIsExist")
	ErrStorage       = NewCodeError(StorageError, "StorageError")
)

func init() {
	// an expired token is an auth failure
	_ = DefaultCodeRelation.Add(AuthError, TokenExpiredError)
}
