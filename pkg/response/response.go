package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeTooMany       = 429
	CodeServerError   = 500
	CodeUnavailable   = 503
	CodeBusinessError = 1000
)

// 业务错误码，按模块分段
const (
	CodeBuyerNotFound         = 1101
	CodeProductNotFound       = 1102
	CodeInvalidPrice          = 1103
	CodeInsufficientFunds     = 1104
	CodeMissingSeller         = 1105
	CodeSelfPurchaseForbidden = 1106
	CodeSellerNotFound        = 1107
	CodeAccountBanned         = 1108

	CodeOrderNotFound        = 1201
	CodeOrderAlreadyReviewed = 1202
	CodeNotOrderBuyer        = 1203

	CodeInvalidAmount     = 1301
	CodeInvalidDetails    = 1302
	CodePayoutFailed      = 1303
	CodePayoutUnavailable = 1304

	CodeAccountNotFound     = 1401
	CodeUnsupportedProvider = 1402
	CodeSystemBusy          = 1501
	CodeDependencyFailure   = 1502
)

var reasonCodes = map[string]int{
	"BuyerNotFound":         CodeBuyerNotFound,
	"ProductNotFound":       CodeProductNotFound,
	"InvalidPrice":          CodeInvalidPrice,
	"InsufficientFunds":     CodeInsufficientFunds,
	"MissingSeller":         CodeMissingSeller,
	"SelfPurchaseForbidden": CodeSelfPurchaseForbidden,
	"SellerNotFound":        CodeSellerNotFound,
	"AccountBanned":         CodeAccountBanned,
	"OrderNotFound":         CodeOrderNotFound,
	"OrderAlreadyReviewed":  CodeOrderAlreadyReviewed,
	"NotOrderBuyer":         CodeNotOrderBuyer,
	"InvalidAmount":         CodeInvalidAmount,
	"InvalidDetails":        CodeInvalidDetails,
	"PayoutFailed":          CodePayoutFailed,
	"PayoutUnavailable":     CodePayoutUnavailable,
	"AccountNotFound":       CodeAccountNotFound,
	"UnsupportedProvider":   CodeUnsupportedProvider,
	"InvalidParam":          CodeParamError,
	"SystemBusy":            CodeSystemBusy,
	"DependencyFailure":     CodeDependencyFailure,
}

// CodeFor 错误名转数字码，未登记的归为通用业务错误
func CodeFor(reason string) int {
	if code, ok := reasonCodes[reason]; ok {
		return code
	}
	return CodeBusinessError
}

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Fail 按 HTTP 状态码返回错误，webhook 渠道依赖状态码决定是否重投
func Fail(c *gin.Context, status int, reason, message string, data interface{}) {
	c.JSON(status, Response{
		Code:    CodeFor(reason),
		Message: message,
		Reason:  reason,
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}
