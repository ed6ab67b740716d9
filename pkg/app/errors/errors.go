// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is used when an operation completes without error.
	CategoryNoError Category = iota
	// CategoryDataError The client sends some invalid data in the request,
	// for example, missing or incorrect content in the payload or parameters.
	// Could also represent a generic client error.
	CategoryDataError
	// CategoryUnauthorized The client is not authorized to access the requested resource
	CategoryUnauthorized
	// CategoryForbidden The client is not authenticated to access the requested resource
	CategoryForbidden
	// CategoryResourceNotFound The client is attempting to access a resource that does not exist
	CategoryResourceNotFound
	// CategoryNotSupported The requested functionality is not supported
	CategoryNotSupported
	// CategoryDataConflict The client send some data that can create conflict with existing data
	CategoryDataConflict
	// CategoryDependencyFailure A dependent service is throwing errors
	CategoryDependencyFailure
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
	// CategoryConnectionTimeout Connection to a dependent service timing out
	CategoryConnectionTimeout
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryUnauthorized:
		return "CategoryUnauthorized"
	case CategoryForbidden:
		return "CategoryForbidden"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryNotSupported:
		return "CategoryNotSupported"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	case CategoryConnectionTimeout:
		return "CategoryConnectionTimeout"
	default:
		return "CategoryGeneralError"
	}
}

// Code is a stable, machine-readable identifier for the exact rule a request
// violated. Codes are part of the API contract: callers branch on them, so the
// values never change once released.
type Code string

const (
	CodeInvalidConversionID        Code = "INVALID_CONVERSION_ID"
	CodeInvalidTokenPairID         Code = "INVALID_TOKEN_PAIR_ID"
	CodeUnsupportedChainPair       Code = "UNSUPPORTED_CHAIN_PAIR"
	CodeAmountOutOfBounds          Code = "AMOUNT_OUT_OF_BOUNDS"
	CodeIncorrectSignature         Code = "INCORRECT_SIGNATURE"
	CodeInvalidSignatureFormat     Code = "INVALID_SIGNATURE_FORMAT"
	CodeSignatureExpired           Code = "SIGNATURE_EXPIRED"
	CodeTransactionAlreadyRecorded Code = "TRANSACTION_ALREADY_RECORDED"
	CodeTransactionInProgress      Code = "TRANSACTION_IN_PROGRESS"
	CodeConversionComplete         Code = "CONVERSION_COMPLETE"
	CodeAgentOnlyChain             Code = "AGENT_ONLY_CHAIN"
	CodeConversionNotClaimable     Code = "CONVERSION_NOT_CLAIMABLE"
	CodeInvalidClaimOperation      Code = "INVALID_CLAIM_OPERATION"
	CodeMalformedTransactionHash   Code = "MALFORMED_TRANSACTION_HASH"
	CodeTransactionNotFound        Code = "TRANSACTION_NOT_FOUND"
	CodeEvidenceMismatch           Code = "EVIDENCE_MISMATCH"
	CodeUnableToParseEvent         Code = "UNABLE_TO_PARSE_EVENT"
	CodeValidation                 Code = "VALIDATION_ERROR"
	CodeInternal                   Code = "INTERNAL_ERROR"
)

// ServiceError represents service specific type that
// is used all over the services.
type ServiceError struct {
	Category Category
	Code     Code
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is implements the custom condition to check an error is equal to a service error
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// HasCode checks that provided error is a ServiceError carrying the given code
func HasCode(err error, code Code) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code == code {
		return true
	}
	return false
}

// CodeOf returns the code carried by the error, or CodeInternal for anything
// that is not a ServiceError.
func CodeOf(err error) Code {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Code != "" {
		return svcErr.Code
	}
	return CodeInternal
}

// IsInternalError checks that provided error is a Internal system error
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && (svcErr.Category < CategoryDependencyFailure) {
		return false
	}
	return true
}

// GeneralError returns a general service error
// this error mesage sent to the user is "Internal Server Error"
// the error passed is logged in the logger
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Code:     CodeInternal,
		Message:  "Internal Server Error",
		Err:      err,
	}
}

// DependencyError returns an error with category DependencyFailure.
// Used for chain RPC and other collaborator failures; the message sent to the
// user stays opaque while the underlying error is logged.
func DependencyError(err error) error {
	if err == nil {
		err = errors.New("dependency failure")
	}
	return &ServiceError{
		Category: CategoryDependencyFailure,
		Code:     CodeInternal,
		Message:  "Internal Server Error",
		Err:      err,
	}
}

// BadRequestError returns an error with category DataError and the given code
// the error message provided is returned to the user
// the error object provided is logged in logger
func BadRequestError(err error, code Code, message string) error {
	if err == nil {
		err = errors.New("bad request: " + message)
	}
	return &ServiceError{
		Category: CategoryDataError,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// ResourceNotFoundError returns an error with category ResourceNotFound
// the error message provided is returned to the user
// the err object provided is logged in logger
func ResourceNotFoundError(err error, code Code, message string) error {
	if err == nil {
		err = errors.New("resource not found: " + message)
	}
	return &ServiceError{
		Category: CategoryResourceNotFound,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// NotSupportedError returns an error with category NotSupported
// the error message provided is returned to the user
// the error object provided is logged in logger
func NotSupportedError(err error, code Code, message string) error {
	if err == nil {
		err = errors.New("not supported: " + message)
	}
	return &ServiceError{
		Category: CategoryNotSupported,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// ForbiddenError returns a an error with category CategoryForbidden
// the error message provided is returned to the user
// the error object provided is logged in logger
func ForbiddenError(err error, code Code, message string) error {
	if err == nil {
		err = errors.New("request forbidden")
	}
	return &ServiceError{
		Category: CategoryForbidden,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// ConflictError returns an error with category CategoryDataConflict
// the error message provided is returned to the user
// the error object provided is logged in logger
func ConflictError(err error, code Code, message string) error {
	if err == nil {
		err = errors.New("conflict")
	}
	return &ServiceError{
		Category: CategoryDataConflict,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryUnauthorized:
		return http.StatusUnauthorized
	case CategoryForbidden:
		return http.StatusForbidden
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryNotSupported:
		return http.StatusMethodNotAllowed
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	case CategoryGeneralError:
		return http.StatusInternalServerError
	case CategoryConnectionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
