package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BrokerErrorUnauthenticated     = "CONNECTIONS_UNAUTHENTICATED"
	BrokerErrorMissingParams       = "CONNECTIONS_MISSING_PARAMS"
	BrokerErrorUserNotFound        = "CONNECTIONS_USER_NOT_FOUND"
	BrokerErrorExchangeFailed      = "CONNECTIONS_EXCHANGE_FAILED"
	BrokerErrorIdentityFetchFailed = "CONNECTIONS_IDENTITY_FETCH_FAILED"
	BrokerErrorInvalidService      = "CONNECTIONS_INVALID_SERVICE"
	BrokerErrorNotConnected        = "CONNECTIONS_NOT_CONNECTED"
	BrokerErrorHubNotFound         = "CONNECTIONS_HUB_NOT_FOUND"
	BrokerErrorPartialState        = "CONNECTIONS_PARTIAL_STATE"
	BrokerErrorInternal            = "CONNECTIONS_INTERNAL_ERROR"
)

func brokerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBrokerErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unknown service"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorInvalidService)
	case strings.Contains(msg, "user not found"):
		return newBrokerError(err.Error(), goerrors.CategoryNotFound, BrokerErrorUserNotFound)
	case strings.Contains(msg, "hub not found"):
		return newBrokerError(err.Error(), goerrors.CategoryNotFound, BrokerErrorHubNotFound)
	case strings.Contains(msg, "not connected"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorNotConnected)
	case strings.Contains(msg, "token endpoint"), strings.Contains(msg, "exchange"):
		return newBrokerError(err.Error(), goerrors.CategoryExternal, BrokerErrorExchangeFailed)
	case strings.Contains(msg, "identity"), strings.Contains(msg, "profile"):
		return newBrokerError(err.Error(), goerrors.CategoryExternal, BrokerErrorIdentityFetchFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorMissingParams)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBrokerErrorEnvelope(mapped)
}

func newBrokerError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBrokerErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBrokerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = BrokerHTTPStatus(err)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBrokerTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBrokerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BrokerErrorMissingParams
	case goerrors.CategoryNotFound:
		return BrokerErrorUserNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BrokerErrorUnauthenticated
	case goerrors.CategoryExternal:
		return BrokerErrorExchangeFailed
	default:
		return BrokerErrorInternal
	}
}

// BrokerHTTPStatus maps a broker error to the status its HTTP surface
// responds with. NotConnected and InvalidService are bad-input errors,
// missing users and hubs are not-found, everything external collapses to
// a bad gateway.
func BrokerHTTPStatus(err *goerrors.Error) int {
	if err == nil {
		return http.StatusOK
	}
	switch err.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
