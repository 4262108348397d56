package checkout

import (
	"context"
	"strings"

	xerrors "ChainCart/internal/errors"
)

// Payer 是能够签名并广播预备交易的钱包。
type Payer interface {
	Address() string
	SubmitPrepared(ctx context.Context, serialized string) (string, error)
}

// PurchaseRequest 是一次购买的输入，付款链由钱包决定。
type PurchaseRequest struct {
	Locator         string
	Email           string
	ShippingAddress *PhysicalAddress
	// Method 是结账服务的链名称，例如 base-sepolia 或 solana。
	Method   string
	Currency string
	// PayerAddress 可选，非空时必须与钱包地址一致。
	PayerAddress string
	Locale       string
}

// PurchaseResult 汇总订单与支付交易。
type PurchaseResult struct {
	OrderID  string `json:"orderId"`
	TxHash   string `json:"txHash"`
	Status   string `json:"status"`
	Phase    string `json:"phase"`
	Total    *Price `json:"total,omitempty"`
	Currency string `json:"currency"`
	Payer    string `json:"payerAddress"`
}

// Purchase 创建订单并由钱包支付。订单创建成功后即视为购买完成，不再二次确认。
func (c *Client) Purchase(ctx context.Context, payer Payer, req PurchaseRequest) (*PurchaseResult, error) {
	if payer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置付款钱包")
	}
	payerAddress := payer.Address()
	if requested := strings.TrimSpace(req.PayerAddress); requested != "" && !sameAddress(requested, payerAddress) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "付款地址 "+requested+" 不是当前钱包地址 "+payerAddress)
	}

	order, err := c.CreateOrder(ctx, OrderRequest{
		Recipient: Recipient{Email: strings.TrimSpace(req.Email), PhysicalAddress: req.ShippingAddress},
		Payment: Payment{
			Method:       strings.ToLower(strings.TrimSpace(req.Method)),
			Currency:     strings.ToLower(strings.TrimSpace(req.Currency)),
			PayerAddress: payerAddress,
		},
		LineItems: []LineItem{{ProductLocator: strings.TrimSpace(req.Locator)}},
		Locale:    req.Locale,
	})
	if err != nil {
		return nil, err
	}

	prep := order.Payment.Preparation
	if prep == nil || strings.TrimSpace(prep.SerializedTransaction) == "" {
		reason := order.Payment.Status
		if fr := order.Payment.FailureReason; fr != nil && fr.Message != "" {
			reason = fr.Message
		}
		return nil, xerrors.New(xerrors.CodeCheckoutFailure, "订单 "+order.OrderID+" 没有可支付的交易: "+reason,
			xerrors.WithMetadata("order_id", order.OrderID))
	}

	txHash, err := payer.SubmitPrepared(ctx, prep.SerializedTransaction)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCheckoutFailure, err, "支付订单 "+order.OrderID+" 失败",
			xerrors.WithMetadata("order_id", order.OrderID))
	}

	return &PurchaseResult{
		OrderID:  order.OrderID,
		TxHash:   txHash,
		Status:   "payment-submitted",
		Phase:    order.Phase,
		Total:    order.Quote.TotalPrice,
		Currency: order.Payment.Currency,
		Payer:    payerAddress,
	}, nil
}

// sameAddress 比较两个链上地址；0x 十六进制地址不区分大小写。
func sameAddress(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, "0x") && strings.HasPrefix(b, "0x") && strings.EqualFold(a, b)
}
