package web3

import (
	"context"
	"math/big"
	"strings"

	xerrors "ChainCart/internal/errors"
)

// Family 标识链的实现类别。
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// Token 描述链上的一个同质化代币。
type Token struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Address  string `yaml:"address" json:"address"`
	Decimals int    `yaml:"decimals" json:"decimals"`
}

// Chain 是一条链的预设参数。
type Chain struct {
	Name           string  `yaml:"-" json:"name"`
	Family         Family  `yaml:"family" json:"family"`
	ChainID        int64   `yaml:"chain_id" json:"chain_id,omitempty"`
	RPCURL         string  `yaml:"rpc_url" json:"-"`
	NativeSymbol   string  `yaml:"native_symbol" json:"native_symbol"`
	NativeDecimals int     `yaml:"native_decimals" json:"native_decimals"`
	CheckoutMethod string  `yaml:"checkout_method" json:"checkout_method"`
	Description    string  `yaml:"description" json:"description,omitempty"`
	Tokens         []Token `yaml:"tokens" json:"tokens,omitempty"`
}

// Token 按符号（不区分大小写）查找代币。
func (c Chain) Token(symbol string) (Token, error) {
	symbol = strings.TrimSpace(symbol)
	for _, token := range c.Tokens {
		if strings.EqualFold(token.Symbol, symbol) {
			return token, nil
		}
	}
	return Token{}, xerrors.New(xerrors.CodeInvalidArgument, "链 "+c.Name+" 不支持代币 "+symbol)
}

// IsNative 判断符号是否指向链的原生币。
func (c Chain) IsNative(symbol string) bool {
	return strings.EqualFold(strings.TrimSpace(symbol), c.NativeSymbol)
}

// Balance 是格式化后的余额，Amount 为十进制字符串，Raw 为最小单位整数。
type Balance struct {
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
	Raw      string `json:"raw"`
	Decimals int    `json:"decimals"`
}

// NewBalance 根据最小单位数值构造余额。
func NewBalance(symbol string, raw *big.Int, decimals int) Balance {
	if raw == nil {
		raw = new(big.Int)
	}
	return Balance{
		Symbol:   symbol,
		Amount:   FormatUnits(raw, decimals),
		Raw:      raw.String(),
		Decimals: decimals,
	}
}

// TransferResult 是一笔已广播转账的摘要。
type TransferResult struct {
	TxHash string `json:"tx_hash"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Symbol string `json:"symbol"`
}

// Wallet 是持有签名私钥的钱包能力，两种链族各有一个实现。
type Wallet interface {
	Address() string
	Chain() Chain
	Balance(ctx context.Context) (Balance, error)
	TokenBalance(ctx context.Context, symbol string) (Balance, error)
	Transfer(ctx context.Context, to, amount string) (TransferResult, error)
	TransferToken(ctx context.Context, symbol, to, amount string) (TransferResult, error)
	// SubmitPrepared 签名并广播结账服务准备好的交易，返回交易哈希或签名。
	SubmitPrepared(ctx context.Context, serialized string) (string, error)
	Close()
}
