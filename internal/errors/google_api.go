package errors

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/dl-alexandre/docsync/internal/logging"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
	"google.golang.org/api/googleapi"
)

// Classify converts an error returned by a document service call into an
// *utils.AppError carrying a stable code. Errors that are already classified
// pass through unchanged.
func Classify(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if err == nil {
		return nil
	}
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}

	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if stderrors.Is(err, context.Canceled) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeTimeout, "operation timed out").
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		return classifyTransport(service, err, reqCtx, logger)
	}

	var code string
	var retryable bool

	switch apiErr.Code {
	case 400, 409:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "sharingRateLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.ErrCodeRateLimited
				retryable = true
			case "dailyLimitExceeded":
				code = utils.ErrCodeRateLimited
			}
		}
	case 404:
		code = utils.ErrCodeFileNotFound
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = apiErr.Code >= 500
	}

	logger.Warn("remote error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", apiErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if len(apiErr.Errors) > 0 {
		builder.WithReason(apiErr.Errors[0].Reason)
		switch apiErr.Errors[0].Reason {
		case "insufficientFilePermissions":
			builder.WithContext("capability", types.CapEditDocumentContent)
		case "sharingRateLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded":
			builder.WithContext("suggestedAction", "wait before retrying")
		}
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "run 'docsync account login' to store a fresh token")
	case utils.ErrCodeFileNotFound:
		if len(reqCtx.NodeIDs) > 0 {
			builder.WithContext("nodeIds", reqCtx.NodeIDs)
		}
	}

	if apiErr.Code >= 500 && apiErr.Code <= 504 {
		builder.WithContext("serverError", true)
	}

	return utils.WrapAppError(builder.Build(), err)
}

func classifyTransport(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	code := utils.ErrCodeNetworkError
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		code = utils.ErrCodeTimeout
	}

	logger.Warn("transport error",
		logging.F("error", err.Error()),
		logging.F("errorCode", code),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)
	return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
		WithRetryable(true).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("service", service).
		Build(), err)
}

// IsAuthFailure reports whether err means the account's token is unusable
func IsAuthFailure(err error) bool {
	return utils.IsCode(err, utils.ErrCodeAuthExpired) ||
		utils.IsCode(err, utils.ErrCodeAuthRequired) ||
		utils.IsCode(err, utils.ErrCodeNoCredential)
}

// IsPermissionDenied reports whether err is a capability failure for one item
func IsPermissionDenied(err error) bool {
	return utils.IsCode(err, utils.ErrCodePermissionDenied)
}
