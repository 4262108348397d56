package checkout

import (
	"net/mail"
	"sort"
	"strings"

	xerrors "ChainCart/internal/errors"
)

// PhysicalAddress 是实体商品的收货地址。
type PhysicalAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Recipient 描述订单接收人。
type Recipient struct {
	Email           string           `json:"email"`
	PhysicalAddress *PhysicalAddress `json:"physicalAddress,omitempty"`
}

// Payment 描述支付方式。Method 是链名称，Currency 是代币符号。
type Payment struct {
	Method       string `json:"method"`
	Currency     string `json:"currency"`
	PayerAddress string `json:"payerAddress"`
}

// LineItem 指向一个商品。
type LineItem struct {
	ProductLocator string `json:"productLocator"`
}

// OrderRequest 是创建订单的请求体。
type OrderRequest struct {
	Recipient Recipient  `json:"recipient"`
	Payment   Payment    `json:"payment"`
	LineItems []LineItem `json:"lineItems"`
	Locale    string     `json:"locale,omitempty"`
}

// Validate 检查请求中必填的字段。
func (r OrderRequest) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Recipient.Email)); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "收件人邮箱无效")
	}
	if len(r.LineItems) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "订单至少需要一个商品")
	}
	for _, item := range r.LineItems {
		if !ValidLocator(item.ProductLocator) {
			return xerrors.New(xerrors.CodeInvalidArgument, "商品定位符格式应为 <store>:<id>，例如 amazon:B08SVZ775L，实际为: "+item.ProductLocator)
		}
	}
	if addr := r.Recipient.PhysicalAddress; addr != nil {
		missing := make([]string, 0, 5)
		for field, value := range map[string]string{
			"name": addr.Name, "line1": addr.Line1, "city": addr.City,
			"postalCode": addr.PostalCode, "country": addr.Country,
		} {
			if strings.TrimSpace(value) == "" {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return xerrors.New(xerrors.CodeInvalidArgument, "收货地址缺少字段: "+strings.Join(missing, ", "))
		}
	}
	if strings.TrimSpace(r.Payment.Method) == "" || strings.TrimSpace(r.Payment.Currency) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "支付方式与币种不能为空")
	}
	if strings.TrimSpace(r.Payment.PayerAddress) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "付款地址不能为空")
	}
	return nil
}

// ValidLocator 判断商品定位符是否为 <store>:<id> 形式。
func ValidLocator(locator string) bool {
	store, id, ok := strings.Cut(strings.TrimSpace(locator), ":")
	return ok && store != "" && id != "" && !strings.ContainsAny(id, " /")
}

// Order 是结账服务返回的订单。
type Order struct {
	OrderID   string       `json:"orderId"`
	Phase     string       `json:"phase"`
	Locale    string       `json:"locale,omitempty"`
	LineItems []OrderItem  `json:"lineItems,omitempty"`
	Quote     Quote        `json:"quote"`
	Payment   OrderPayment `json:"payment"`
}

// OrderItem 是订单中的单个商品及其报价。
type OrderItem struct {
	Chain    string `json:"chain,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
	Quote    Quote  `json:"quote"`
}

// Quote 描述报价状态与总价。
type Quote struct {
	Status     string `json:"status"`
	TotalPrice *Price `json:"totalPrice,omitempty"`
}

// Price 是带币种的金额。
type Price struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// OrderPayment 是订单的支付状态与预备交易。
type OrderPayment struct {
	Status        string         `json:"status"`
	Method        string         `json:"method"`
	Currency      string         `json:"currency"`
	Preparation   *Preparation   `json:"preparation,omitempty"`
	FailureReason *FailureReason `json:"failureReason,omitempty"`
}

// Preparation 携带需要钱包签名的序列化交易。
type Preparation struct {
	Chain                 string `json:"chain,omitempty"`
	PayerAddress          string `json:"payerAddress,omitempty"`
	SerializedTransaction string `json:"serializedTransaction"`
}

// FailureReason 说明支付失败的原因。
type FailureReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
