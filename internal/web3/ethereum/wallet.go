package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Backend 是钱包依赖的最小节点接口，ethclient.Client 与模拟链均满足。
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
}

// Config describes how to construct an EVM wallet.
type Config struct {
	Chain      web3.Chain
	PrivateKey string
}

// Wallet implements web3.Wallet for EVM compatible chains.
type Wallet struct {
	chain   web3.Chain
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	closeFn func()

	mu      sync.Mutex
	chainID *big.Int
}

// NewWallet dials the chain RPC endpoint and loads the signing key.
func NewWallet(ctx context.Context, cfg Config) (*Wallet, error) {
	rpcURL := strings.TrimSpace(cfg.Chain.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeMissingCredential, "未配置以太坊 RPC 地址")
	}
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接以太坊节点失败")
	}

	w := NewWalletWithBackend(cfg.Chain, key, client)
	w.closeFn = client.Close
	return w, nil
}

// NewWalletWithBackend wraps an existing backend, e.g. a simulated chain in tests.
func NewWalletWithBackend(chain web3.Chain, key *ecdsa.PrivateKey, backend Backend) *Wallet {
	w := &Wallet{
		chain:   chain,
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
	if chain.ChainID > 0 {
		w.chainID = big.NewInt(chain.ChainID)
	}
	return w
}

// ParsePrivateKey 解析 0x 前缀可选的十六进制私钥。
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, xerrors.New(xerrors.CodeMissingCredential, "WALLET_PRIVATE_KEY is not set")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "无法解析 EVM 私钥")
	}
	return key, nil
}

// Address returns the checksummed wallet address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Chain returns the chain preset this wallet is bound to.
func (w *Wallet) Chain() web3.Chain {
	return w.chain
}

// Close releases the RPC connection.
func (w *Wallet) Close() {
	if w.closeFn != nil {
		w.closeFn()
		w.closeFn = nil
	}
}

// Balance returns the native coin balance.
func (w *Wallet) Balance(ctx context.Context) (web3.Balance, error) {
	raw, err := w.backend.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return web3.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询余额失败")
	}
	return web3.NewBalance(w.chain.NativeSymbol, raw, w.chain.NativeDecimals), nil
}

// TokenBalance returns the ERC-20 balance of a configured token. The native
// symbol is accepted as an alias for Balance.
func (w *Wallet) TokenBalance(ctx context.Context, symbol string) (web3.Balance, error) {
	if w.chain.IsNative(symbol) {
		return w.Balance(ctx)
	}
	token, err := w.chain.Token(symbol)
	if err != nil {
		return web3.Balance{}, err
	}
	contract, err := tokenAddress(token)
	if err != nil {
		return web3.Balance{}, err
	}

	data, err := parsedERC20.Pack("balanceOf", w.address)
	if err != nil {
		return web3.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "编码 balanceOf 失败")
	}
	out, err := w.backend.CallContract(ctx, gethcore.CallMsg{From: w.address, To: &contract, Data: data}, nil)
	if err != nil {
		return web3.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询代币余额失败")
	}
	values, err := parsedERC20.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return web3.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "解析代币余额失败")
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return web3.Balance{}, xerrors.New(xerrors.CodeWalletFailure, "balanceOf 返回了非整数")
	}
	return web3.NewBalance(token.Symbol, raw, token.Decimals), nil
}

// Transfer sends native coin to the given address.
func (w *Wallet) Transfer(ctx context.Context, to, amount string) (web3.TransferResult, error) {
	recipient, err := parseAddress(to)
	if err != nil {
		return web3.TransferResult{}, err
	}
	value, err := web3.ParseUnits(amount, w.chain.NativeDecimals)
	if err != nil {
		return web3.TransferResult{}, err
	}

	hash, err := w.send(ctx, &recipient, value, nil)
	if err != nil {
		return web3.TransferResult{}, err
	}
	return web3.TransferResult{
		TxHash: hash,
		From:   w.Address(),
		To:     recipient.Hex(),
		Amount: web3.FormatUnits(value, w.chain.NativeDecimals),
		Symbol: w.chain.NativeSymbol,
	}, nil
}

// TransferToken sends an ERC-20 token through its transfer method.
func (w *Wallet) TransferToken(ctx context.Context, symbol, to, amount string) (web3.TransferResult, error) {
	if w.chain.IsNative(symbol) {
		return w.Transfer(ctx, to, amount)
	}
	token, err := w.chain.Token(symbol)
	if err != nil {
		return web3.TransferResult{}, err
	}
	contract, err := tokenAddress(token)
	if err != nil {
		return web3.TransferResult{}, err
	}
	recipient, err := parseAddress(to)
	if err != nil {
		return web3.TransferResult{}, err
	}
	value, err := web3.ParseUnits(amount, token.Decimals)
	if err != nil {
		return web3.TransferResult{}, err
	}

	data, err := parsedERC20.Pack("transfer", recipient, value)
	if err != nil {
		return web3.TransferResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "编码 transfer 失败")
	}
	hash, err := w.send(ctx, &contract, new(big.Int), data)
	if err != nil {
		return web3.TransferResult{}, err
	}
	return web3.TransferResult{
		TxHash: hash,
		From:   w.Address(),
		To:     recipient.Hex(),
		Amount: web3.FormatUnits(value, token.Decimals),
		Symbol: token.Symbol,
	}, nil
}

// SubmitPrepared re-signs a checkout-prepared transaction with this wallet's
// key and broadcasts it. Only the destination, value and calldata are kept.
func (w *Wallet) SubmitPrepared(ctx context.Context, serialized string) (string, error) {
	raw, err := hexutil.Decode(ensureHexPrefix(strings.TrimSpace(serialized)))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "预备交易不是合法的十六进制")
	}
	prepared, err := DecodePrepared(raw)
	if err != nil {
		return "", err
	}
	if prepared.To == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "预备交易缺少接收地址")
	}
	chainID, err := w.resolveChainID(ctx)
	if err != nil {
		return "", err
	}
	if prepared.ChainID != nil && prepared.ChainID.Sign() > 0 && prepared.ChainID.Cmp(chainID) != 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("预备交易属于链 %s，当前钱包链为 %s", prepared.ChainID, chainID))
	}
	return w.send(ctx, prepared.To, prepared.Value, prepared.Data)
}

// send 构造、签名并广播交易。节点支持 EIP-1559 时使用动态费用交易。
func (w *Wallet) send(ctx context.Context, to *common.Address, value *big.Int, data []byte) (string, error) {
	if value == nil {
		value = new(big.Int)
	}
	chainID, err := w.resolveChainID(ctx)
	if err != nil {
		return "", err
	}
	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取 nonce 失败")
	}
	gas, err := w.backend.EstimateGas(ctx, gethcore.CallMsg{From: w.address, To: to, Value: value, Data: data})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "估算 gas 失败")
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取最新区块失败")
	}

	var txData coretypes.TxData
	if head.BaseFee != nil {
		tip, err := w.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取小费建议失败")
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		txData = &coretypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        to,
			Value:     value,
			Data:      data,
		}
	} else {
		price, err := w.backend.SuggestGasPrice(ctx)
		if err != nil {
			return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取 gas 价格失败")
		}
		txData = &coretypes.LegacyTx{Nonce: nonce, GasPrice: price, Gas: gas, To: to, Value: value, Data: data}
	}

	signed, err := coretypes.SignNewTx(w.key, coretypes.LatestSignerForChainID(chainID), txData)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "签名交易失败")
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "广播交易失败")
	}
	return signed.Hash().Hex(), nil
}

func (w *Wallet) resolveChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.chainID != nil {
		return w.chainID, nil
	}
	id, err := w.backend.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取链 ID 失败")
	}
	w.chainID = id
	return id, nil
}

func parseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "无效的 EVM 地址: "+value)
	}
	return common.HexToAddress(value), nil
}

func tokenAddress(token web3.Token) (common.Address, error) {
	addr, err := parseAddress(token.Address)
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "代币 "+token.Symbol+" 的合约地址配置错误")
	}
	return addr, nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}
