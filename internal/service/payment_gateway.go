package service

import (
	"context"
	"fmt"
	"net/http"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/util"

	"github.com/go-resty/resty/v2"
)

// GatewayPayment 支付网关返回的权威支付记录
type GatewayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
	Status   string `json:"status"`
}

type GatewayOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type PaymentGateway interface {
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
}

type gatewayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// RestPaymentGateway 基于 resty 的网关客户端，Basic Auth 认证，5xx 有限重试
type RestPaymentGateway struct {
	client *resty.Client
}

func NewRestPaymentGateway(cfg *config.PaymentConfig) *RestPaymentGateway {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &RestPaymentGateway{client: client}
}

func (g *RestPaymentGateway) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	var payment GatewayPayment
	var gwErr gatewayError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&payment).
		SetError(&gwErr).
		Get("/payments/{id}")
	if err != nil {
		return nil, util.Transient(fmt.Errorf("fetch payment %s: %w", paymentID, err))
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: gateway has no payment %s", util.ErrPaymentMismatch, paymentID)
	case resp.IsError():
		return nil, util.Transient(fmt.Errorf("fetch payment %s: gateway status %d %s", paymentID, resp.StatusCode(), gwErr.Error.Description))
	}
	return &payment, nil
}

func (g *RestPaymentGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	var order GatewayOrder
	var gwErr gatewayError
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&order).
		SetError(&gwErr).
		Post("/orders")
	if err != nil {
		return nil, util.Transient(fmt.Errorf("create order: %w", err))
	}
	if resp.IsError() {
		if resp.StatusCode() < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d %s", util.ErrGatewayRejected, resp.StatusCode(), gwErr.Error.Description)
		}
		return nil, util.Transient(fmt.Errorf("create order: gateway status %d", resp.StatusCode()))
	}
	return &order, nil
}

// checkPayment 校验网关记录与回调声明一致，且金额覆盖课程价格
func checkPayment(p *GatewayPayment, orderID string, price int64) error {
	if p.OrderID != orderID {
		return fmt.Errorf("%w: order id %q, gateway has %q", util.ErrPaymentMismatch, orderID, p.OrderID)
	}
	switch p.Status {
	case "captured", "authorized":
	case "created", "pending":
		// 回调早于网关落账，记为失败等待补偿任务重放
		return util.Transient(fmt.Errorf("%w: payment status %q", util.ErrPaymentPending, p.Status))
	default:
		return fmt.Errorf("%w: payment status %q", util.ErrPaymentMismatch, p.Status)
	}
	if p.Amount < price {
		return fmt.Errorf("%w: paid %d, price %d", util.ErrPaymentMismatch, p.Amount, price)
	}
	return nil
}
