package handler

import (
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/slabby/internal/core/domain"
)

// ErrorDomain tags gRPC error details produced by this service.
const ErrorDomain = "slabby"

// HTTPStatus maps domain codes to HTTP status codes.
func HTTPStatus(code domain.Code) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeShopOutOfStock:
		return http.StatusGone
	case domain.CodeInsufficientBalance, domain.CodeInsufficientBalanceToSell:
		return http.StatusPaymentRequired
	case domain.CodeLocationInUse, domain.CodeDuplicateRequest, domain.CodeNoEditSession,
		domain.CodeShopOutOfSpace, domain.CodePlayerOutOfInventorySpace, domain.CodePlayerOutOfStock:
		return http.StatusConflict
	case domain.CodeUnsupportedOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func GRPCCode(code domain.Code) codes.Code {
	switch code {
	case domain.CodeInvalidArgument:
		return codes.InvalidArgument
	case domain.CodePermissionDenied:
		return codes.PermissionDenied
	case domain.CodeNotFound:
		return codes.NotFound
	case domain.CodeLocationInUse, domain.CodeDuplicateRequest:
		return codes.AlreadyExists
	case domain.CodeShopOutOfStock, domain.CodeShopOutOfSpace,
		domain.CodeInsufficientBalance, domain.CodeInsufficientBalanceToSell,
		domain.CodePlayerOutOfInventorySpace, domain.CodePlayerOutOfStock,
		domain.CodeNoEditSession:
		return codes.FailedPrecondition
	case domain.CodeUnsupportedOperation:
		return codes.Unimplemented
	case domain.CodeUnrecoverableStorage:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// publicMessage hides internal causes of storage and unknown failures.
func publicMessage(err error) string {
	switch domain.Category(err) {
	case domain.CodeUnrecoverableStorage, domain.CodeUnknown:
		return "internal error"
	}
	return err.Error()
}

// toGRPCStatus converts err to a status carrying the domain code as ErrorInfo.
func toGRPCStatus(err error) error {
	code := domain.Category(err)
	st := status.New(GRPCCode(code), publicMessage(err))
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: string(code), Domain: ErrorDomain})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// FromGRPCError recovers the domain code from an error returned by ShopClient.
func FromGRPCError(err error) domain.Code {
	if err == nil {
		return ""
	}
	st, ok := status.FromError(err)
	if !ok {
		return domain.CodeUnknown
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == ErrorDomain {
			return domain.Code(info.Reason)
		}
	}
	return domain.CodeUnknown
}
