package service

import (
	"context"
	"log"

	"marketpay/internal/money"
	"marketpay/internal/repository"

	"github.com/shopspring/decimal"
)

type AdminService struct {
	queries repository.Queries
}

func NewAdminService(queries repository.Queries) *AdminService {
	return &AdminService{queries: queries}
}

type Overview struct {
	TotalUsers      int64           `json:"total_users"`
	TotalSellers    int64           `json:"total_sellers"`
	PlatformRevenue decimal.Decimal `json:"platform_revenue"`
}

// AuditReport 资金守恒校验
//
//	余额合计 + 平台收入 = 充值合计 - 已打款合计 - 在途打款合计
type AuditReport struct {
	Balances        decimal.Decimal `json:"balances"`
	Revenue         decimal.Decimal `json:"revenue"`
	Holdings        decimal.Decimal `json:"holdings"`
	Deposits        decimal.Decimal `json:"deposits"`
	PayoutsSent     decimal.Decimal `json:"payouts_sent"`
	PayoutsInFlight decimal.Decimal `json:"payouts_in_flight"`
	Expected        decimal.Decimal `json:"expected"`
	Difference      decimal.Decimal `json:"difference"`
	Balanced        bool            `json:"balanced"`
}

func (s *AdminService) Overview(ctx context.Context) (*Overview, error) {
	t, err := s.queries.Totals(ctx)
	if err != nil {
		return nil, ErrDependency.wrap(err)
	}
	return &Overview{
		TotalUsers:      t.Users,
		TotalSellers:    t.Sellers,
		PlatformRevenue: t.Revenue,
	}, nil
}

func (s *AdminService) Audit(ctx context.Context) (*AuditReport, error) {
	t, err := s.queries.Totals(ctx)
	if err != nil {
		return nil, ErrDependency.wrap(err)
	}

	r := &AuditReport{
		Balances:        t.Balances,
		Revenue:         t.Revenue,
		Holdings:        money.Add(t.Balances, t.Revenue),
		Deposits:        t.Deposits,
		PayoutsSent:     t.PayoutsSent,
		PayoutsInFlight: t.PayoutsInFlight,
		Expected:        money.Sub(money.Sub(t.Deposits, t.PayoutsSent), t.PayoutsInFlight),
	}
	r.Difference = money.Sub(r.Holdings, r.Expected)
	r.Balanced = r.Difference.IsZero()

	if !r.Balanced {
		log.Printf("[Audit] 告警: 资金不守恒: holdings=%s, expected=%s, difference=%s", r.Holdings, r.Expected, r.Difference)
	}
	return r, nil
}
