package httputil

// Machine-readable error codes for failures raised by the HTTP layer.
const (
	CodeInternalError      = "INTERNAL_ERROR"
	CodeStoreTimeout       = "STORE_TIMEOUT"
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeInvalidQuery       = "INVALID_QUERY"
	CodeInvalidID          = "INVALID_ID"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeMissingAuth        = "MISSING_AUTH"
	CodeInvalidAuthHeader  = "INVALID_AUTH_HEADER"
	CodeRouteNotFound      = "NOT_FOUND"
)
