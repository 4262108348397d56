package tools

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"ChainCart/internal/checkout"
	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/orders"
	"ChainCart/internal/web3"
)

const (
	defaultRecentOrders = 5
	maxRecentOrders     = 50
)

// Purchaser 创建结账订单并用钱包付款，由 checkout.Client 实现。
type Purchaser interface {
	Purchase(ctx context.Context, payer checkout.Payer, req checkout.PurchaseRequest) (*checkout.PurchaseResult, error)
}

// ShoppingDeps 是购物工具集依赖的协作者。Orders 为空时不记录订单。
type ShoppingDeps struct {
	Wallet   web3.Wallet
	Checkout Purchaser
	Orders   *orders.Recorder
	Locale   string
}

// NewShoppingSet 注册钱包与结账相关的全部工具。
func NewShoppingSet(deps ShoppingDeps) (*Registry, error) {
	if deps.Wallet == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "shopping tools require a wallet")
	}
	if deps.Checkout == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "shopping tools require a checkout client")
	}

	s := &shopping{deps: deps}
	registry := NewRegistry()
	for _, tool := range []Tool{
		&Func{
			ToolName:        "get_wallet_address",
			ToolDescription: "Get the address of the connected wallet. Use it as the payer address for purchases.",
			ToolSchema:      &Schema{Type: "object"},
			Run:             s.walletAddress,
		},
		&Func{
			ToolName:        "get_chain",
			ToolDescription: "Get the chain the wallet is connected to, its native currency and supported tokens.",
			ToolSchema:      &Schema{Type: "object"},
			Run:             s.chain,
		},
		&Func{
			ToolName:        "get_balance",
			ToolDescription: "Get the native currency balance of the wallet, in decimal units.",
			ToolSchema:      &Schema{Type: "object"},
			Run:             s.balance,
		},
		&Func{
			ToolName:        "get_token_balance",
			ToolDescription: "Get the balance of a token held by the wallet, in decimal units.",
			ToolSchema: &Schema{
				Type:       "object",
				Properties: map[string]interface{}{"symbol": stringProp("Token symbol, e.g. USDC")},
				Required:   []string{"symbol"},
			},
			Run: s.tokenBalance,
		},
		&Func{
			ToolName:        "transfer",
			ToolDescription: "Send the chain's native currency to an address.",
			ToolSchema: &Schema{
				Type: "object",
				Properties: map[string]interface{}{
					"to":     stringProp("Recipient address"),
					"amount": stringProp("Amount in decimal units, e.g. 0.01"),
				},
				Required: []string{"to", "amount"},
			},
			Run: s.transfer,
		},
		&Func{
			ToolName:        "transfer_token",
			ToolDescription: "Send a token to an address.",
			ToolSchema: &Schema{
				Type: "object",
				Properties: map[string]interface{}{
					"symbol": stringProp("Token symbol, e.g. USDC"),
					"to":     stringProp("Recipient address"),
					"amount": stringProp("Amount in decimal units, e.g. 12.5"),
				},
				Required: []string{"symbol", "to", "amount"},
			},
			Run: s.transferToken,
		},
		&Func{
			ToolName:        "buy_token",
			ToolDescription: "Buy a product with crypto. Creates a checkout order and pays it from the wallet.",
			ToolSchema: &Schema{
				Type: "object",
				Properties: map[string]interface{}{
					"productLocator": stringProp("Product locator in the format <store>:<id>, e.g. amazon:B08SVZ775L"),
					"email":          stringProp("Recipient email address"),
					"shippingAddress": map[string]interface{}{
						"type":        "object",
						"description": "Recipient shipping address",
						"properties": map[string]interface{}{
							"name":       stringProp("Full name"),
							"line1":      stringProp("Street address"),
							"line2":      stringProp("Apartment, suite, etc."),
							"city":       stringProp("City"),
							"state":      stringProp("State or province"),
							"postalCode": stringProp("ZIP or postal code"),
							"country":    stringProp("Country code, e.g. US"),
						},
						"required": []string{"name", "line1", "city", "postalCode", "country"},
					},
					"currency":     stringProp("Payment token symbol, e.g. usdc"),
					"payerAddress": stringProp("Paying wallet address; must be the connected wallet and defaults to it"),
				},
				Required: []string{"productLocator", "email", "shippingAddress", "currency"},
			},
			Run: s.buy,
		},
		&Func{
			ToolName:        "get_recent_orders",
			ToolDescription: "List the most recent purchases made from this wallet, newest first.",
			ToolSchema: &Schema{
				Type: "object",
				Properties: map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of orders to return, default 5",
					},
				},
			},
			Run: s.recentOrders,
		},
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type shopping struct {
	deps ShoppingDeps
}

// chainInfo 是 get_chain 的返回值。
type chainInfo struct {
	Name           string   `json:"name"`
	Family         string   `json:"family"`
	ChainID        int64    `json:"chainId,omitempty"`
	NativeSymbol   string   `json:"nativeSymbol"`
	CheckoutMethod string   `json:"checkoutMethod"`
	Tokens         []string `json:"tokens"`
}

func (s *shopping) walletAddress(context.Context, map[string]interface{}) (interface{}, error) {
	return map[string]string{"address": s.deps.Wallet.Address()}, nil
}

func (s *shopping) chain(context.Context, map[string]interface{}) (interface{}, error) {
	chain := s.deps.Wallet.Chain()
	info := chainInfo{
		Name:           chain.Name,
		Family:         string(chain.Family),
		ChainID:        chain.ChainID,
		NativeSymbol:   chain.NativeSymbol,
		CheckoutMethod: chain.CheckoutMethod,
		Tokens:         make([]string, 0, len(chain.Tokens)),
	}
	for _, token := range chain.Tokens {
		info.Tokens = append(info.Tokens, token.Symbol)
	}
	return info, nil
}

func (s *shopping) balance(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return s.deps.Wallet.Balance(ctx)
}

func (s *shopping) tokenBalance(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol := stringParam(params, "symbol")
	if s.deps.Wallet.Chain().IsNative(symbol) {
		return s.deps.Wallet.Balance(ctx)
	}
	return s.deps.Wallet.TokenBalance(ctx, symbol)
}

func (s *shopping) transfer(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.deps.Wallet.Transfer(ctx, stringParam(params, "to"), stringParam(params, "amount"))
}

func (s *shopping) transferToken(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	symbol := stringParam(params, "symbol")
	to, amount := stringParam(params, "to"), stringParam(params, "amount")
	if s.deps.Wallet.Chain().IsNative(symbol) {
		return s.deps.Wallet.Transfer(ctx, to, amount)
	}
	return s.deps.Wallet.TransferToken(ctx, symbol, to, amount)
}

func (s *shopping) buy(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	address, err := decodeAddress(params["shippingAddress"])
	if err != nil {
		return nil, err
	}
	chain := s.deps.Wallet.Chain()
	req := checkout.PurchaseRequest{
		Locator:         stringParam(params, "productLocator"),
		Email:           stringParam(params, "email"),
		ShippingAddress: address,
		Method:          chain.CheckoutMethod,
		Currency:        stringParam(params, "currency"),
		PayerAddress:    stringParam(params, "payerAddress"),
		Locale:          s.deps.Locale,
	}

	result, err := s.deps.Checkout.Purchase(ctx, s.deps.Wallet, req)
	if err != nil {
		return nil, err
	}

	if s.deps.Orders != nil {
		s.deps.Orders.Record(ctx, orders.Order{
			OrderID:        result.OrderID,
			Locator:        req.Locator,
			RecipientEmail: req.Email,
			PaymentMethod:  req.Method,
			Currency:       result.Currency,
			PayerAddress:   result.Payer,
			TxHash:         result.TxHash,
			Status:         result.Status,
		})
	}
	return result, nil
}

func (s *shopping) recentOrders(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if s.deps.Orders == nil {
		return []orders.Order{}, nil
	}
	limit := defaultRecentOrders
	switch n := params["limit"].(type) {
	case float64:
		if n > 0 {
			limit = int(math.Min(n, maxRecentOrders))
		}
	case int:
		if n > 0 {
			limit = min(n, maxRecentOrders)
		}
	}
	recent, err := s.deps.Orders.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []orders.Order{}
	}
	return recent, nil
}

func stringParam(params map[string]interface{}, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func decodeAddress(raw interface{}) (*checkout.PhysicalAddress, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid shippingAddress")
	}
	var address checkout.PhysicalAddress
	if err := json.Unmarshal(data, &address); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid shippingAddress")
	}
	return &address, nil
}
