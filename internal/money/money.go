// Package money 集中处理金额运算。
//
// 所有金额都以主币种单位（例如 ₦）的 decimal 表示，每一步运算后立即保留两位小数，
// 不允许浮点误差在多次运算中累积。
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Places 金额保留的小数位
const Places = 2

var ErrInvalidRate = errors.New("佣金比例必须在 [0, 1) 区间内")

var hundred = decimal.NewFromInt(100)

// Round 四舍五入到两位小数
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Add 相加后取整
func Add(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Add(b))
}

// Sub 相减后取整
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Sub(b))
}

// FromMinor 把最小货币单位（kobo、cent）换算为主单位
func FromMinor(minor int64) decimal.Decimal {
	return Round(decimal.NewFromInt(minor).Div(hundred))
}

// ToMinor 把主单位换算为最小货币单位，供需要整数金额的支付渠道使用
func ToMinor(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// IsPositive 金额必须大于零且最多两位小数
func IsPositive(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(Round(d))
}

// Split 一笔成交的拆分结果
type Split struct {
	Price        decimal.Decimal
	Commission   decimal.Decimal
	SellerCredit decimal.Decimal
}

// Splitter 按固定比例计算平台佣金
type Splitter struct {
	rate decimal.Decimal
}

func NewSplitter(rate float64) (*Splitter, error) {
	if rate < 0 || rate >= 1 {
		return nil, ErrInvalidRate
	}
	return &Splitter{rate: decimal.NewFromFloat(rate)}, nil
}

// Rate 返回配置的佣金比例
func (s *Splitter) Rate() decimal.Decimal {
	return s.rate
}

// Split 计算佣金与卖家实收。
// 卖家实收永远由 price - commission 得出，不会再从价格单独计算一次，
// 保证 commission + sellerCredit == price。
func (s *Splitter) Split(price decimal.Decimal) Split {
	price = Round(price)
	commission := Round(price.Mul(s.rate))
	return Split{
		Price:        price,
		Commission:   commission,
		SellerCredit: Sub(price, commission),
	}
}
