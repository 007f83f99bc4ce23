package service

import (
	"errors"
	"fmt"
)

// ErrorKind 决定错误如何呈现给调用方
type ErrorKind int

const (
	// KindValidation 入参不合法，原样提示
	KindValidation ErrorKind = iota + 1
	// KindPrecondition 业务前置条件不满足，原样提示，保证无副作用
	KindPrecondition
	// KindNotFound 引用的对象不存在
	KindNotFound
	// KindDependency 存储、锁、支付渠道等依赖失败，只给出通用提示
	KindDependency
)

// BusinessError 业务错误。Code 是稳定的错误名，Message 可以直接展示给用户。
type BusinessError struct {
	Code    string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// Is 按 Code 比较，带了附加信息的副本仍然匹配原始哨兵
func (e *BusinessError) Is(target error) bool {
	t, ok := target.(*BusinessError)
	return ok && t.Code == e.Code
}

// withMessage 复制一个换了提示语的错误
func (e *BusinessError) withMessage(msg string) *BusinessError {
	c := *e
	c.Message = msg
	return &c
}

func (e *BusinessError) wrap(err error) *BusinessError {
	c := *e
	c.Err = err
	return &c
}

var (
	// 购买
	ErrBuyerNotFound         = &BusinessError{Code: "BuyerNotFound", Kind: KindNotFound, Message: "买家账户不存在"}
	ErrProductNotFound       = &BusinessError{Code: "ProductNotFound", Kind: KindNotFound, Message: "商品不存在"}
	ErrInvalidPrice          = &BusinessError{Code: "InvalidPrice", Kind: KindPrecondition, Message: "商品价格无效"}
	ErrInsufficientFunds     = &BusinessError{Code: "InsufficientFunds", Kind: KindPrecondition, Message: "钱包余额不足"}
	ErrMissingSeller         = &BusinessError{Code: "MissingSeller", Kind: KindPrecondition, Message: "商品缺少卖家信息"}
	ErrSelfPurchaseForbidden = &BusinessError{Code: "SelfPurchaseForbidden", Kind: KindPrecondition, Message: "不能购买自己发布的商品"}
	ErrSellerNotFound        = &BusinessError{Code: "SellerNotFound", Kind: KindNotFound, Message: "卖家账户不存在"}
	ErrAccountBanned         = &BusinessError{Code: "AccountBanned", Kind: KindPrecondition, Message: "账户已被封禁"}

	// 订单
	ErrOrderNotFound        = &BusinessError{Code: "OrderNotFound", Kind: KindNotFound, Message: "订单不存在"}
	ErrOrderAlreadyReviewed = &BusinessError{Code: "OrderAlreadyReviewed", Kind: KindPrecondition, Message: "订单已评价"}
	ErrNotOrderBuyer        = &BusinessError{Code: "NotOrderBuyer", Kind: KindPrecondition, Message: "只有买家本人可以评价订单"}

	// 提现
	ErrInvalidAmount   = &BusinessError{Code: "InvalidAmount", Kind: KindValidation, Message: "提现金额无效"}
	ErrInvalidDetails  = &BusinessError{Code: "InvalidDetails", Kind: KindValidation, Message: "收款信息不完整"}
	ErrPayoutFailed    = &BusinessError{Code: "PayoutFailed", Kind: KindDependency, Message: "打款失败，金额已退回钱包，请稍后重试"}
	ErrPayoutNotReady  = &BusinessError{Code: "PayoutUnavailable", Kind: KindDependency, Message: "该打款方式暂不可用"}
	ErrAccountNotFound = &BusinessError{Code: "AccountNotFound", Kind: KindNotFound, Message: "账户不存在"}

	// 通用
	ErrInvalidParam        = &BusinessError{Code: "InvalidParam", Kind: KindValidation, Message: "参数错误"}
	ErrUnsupportedProvider = &BusinessError{Code: "UnsupportedProvider", Kind: KindValidation, Message: "不支持的支付渠道"}
	ErrSystemBusy          = &BusinessError{Code: "SystemBusy", Kind: KindDependency, Message: "系统繁忙，请稍后重试"}
	ErrDependency          = &BusinessError{Code: "DependencyFailure", Kind: KindDependency, Message: "服务暂时不可用，请稍后重试"}
)

// AsBusinessError 非业务错误统一归为依赖失败
func AsBusinessError(err error) *BusinessError {
	if err == nil {
		return nil
	}
	var be *BusinessError
	if errors.As(err, &be) {
		return be
	}
	return ErrDependency.wrap(err)
}
