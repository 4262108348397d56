package solana

import (
	"context"
	"errors"
	"math/big"
	"strings"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/web3"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
)

// Config describes how to construct a Solana wallet.
type Config struct {
	Chain      web3.Chain
	PrivateKey string
	// Commitment 默认为 confirmed。
	Commitment rpc.CommitmentType
}

// Wallet implements web3.Wallet on top of the Solana JSON-RPC API.
type Wallet struct {
	chain      web3.Chain
	client     *rpc.Client
	key        sol.PrivateKey
	commitment rpc.CommitmentType
}

// NewWallet parses the base58 keypair and prepares an RPC client. No network
// call is made until the first operation.
func NewWallet(cfg Config) (*Wallet, error) {
	rpcURL := strings.TrimSpace(cfg.Chain.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeMissingCredential, "未配置 Solana RPC 地址")
	}
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Wallet{
		chain:      cfg.Chain,
		client:     rpc.New(rpcURL),
		key:        key,
		commitment: commitment,
	}, nil
}

// ParsePrivateKey 解析 base58 编码的 64 字节密钥对。
func ParsePrivateKey(encoded string) (sol.PrivateKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, xerrors.New(xerrors.CodeMissingCredential, "WALLET_PRIVATE_KEY is not set")
	}
	key, err := sol.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "无法解析 Solana 私钥")
	}
	if len(key) != 64 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Solana 私钥长度必须为 64 字节")
	}
	return key, nil
}

// Address returns the base58 public key.
func (w *Wallet) Address() string {
	return w.key.PublicKey().String()
}

// Chain returns the chain preset this wallet is bound to.
func (w *Wallet) Chain() web3.Chain {
	return w.chain
}

// Close releases the RPC client.
func (w *Wallet) Close() {
	if w.client != nil {
		_ = w.client.Close()
	}
}

// Balance returns the SOL balance.
func (w *Wallet) Balance(ctx context.Context) (web3.Balance, error) {
	out, err := w.client.GetBalance(ctx, w.key.PublicKey(), w.commitment)
	if err != nil {
		return web3.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询余额失败")
	}
	raw := new(big.Int).SetUint64(out.Value)
	return web3.NewBalance(w.chain.NativeSymbol, raw, w.chain.NativeDecimals), nil
}

// TokenBalance returns the SPL token balance held in the wallet's associated
// token account. A missing account counts as zero.
func (w *Wallet) TokenBalance(ctx context.Context, symbol string) (web3.Balance, error) {
	if w.chain.IsNative(symbol) {
		return w.Balance(ctx)
	}
	tok, mint, err := w.lookupToken(symbol)
	if err != nil {
		return web3.Balance{}, err
	}
	ata, _, err := sol.FindAssociatedTokenAddress(w.key.PublicKey(), mint)
	if err != nil {
		return web3.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "计算关联代币账户失败")
	}

	out, err := w.client.GetTokenAccountBalance(ctx, ata, w.commitment)
	if err != nil {
		if isAccountMissing(err) {
			return web3.NewBalance(tok.Symbol, new(big.Int), tok.Decimals), nil
		}
		return web3.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询代币余额失败")
	}
	if out.Value == nil {
		return web3.NewBalance(tok.Symbol, new(big.Int), tok.Decimals), nil
	}
	raw, ok := new(big.Int).SetString(out.Value.Amount, 10)
	if !ok {
		return web3.Balance{}, xerrors.New(xerrors.CodeWalletFailure, "无法解析代币余额: "+out.Value.Amount)
	}
	return web3.NewBalance(tok.Symbol, raw, int(out.Value.Decimals)), nil
}

// Transfer sends SOL through the system program.
func (w *Wallet) Transfer(ctx context.Context, to, amount string) (web3.TransferResult, error) {
	recipient, err := parsePublicKey(to)
	if err != nil {
		return web3.TransferResult{}, err
	}
	lamports, err := parseAmount(amount, w.chain.NativeDecimals)
	if err != nil {
		return web3.TransferResult{}, err
	}

	from := w.key.PublicKey()
	sig, err := w.sendInstructions(ctx, system.NewTransferInstruction(lamports, from, recipient).Build())
	if err != nil {
		return web3.TransferResult{}, err
	}
	return web3.TransferResult{
		TxHash: sig,
		From:   from.String(),
		To:     recipient.String(),
		Amount: web3.FormatUnits(new(big.Int).SetUint64(lamports), w.chain.NativeDecimals),
		Symbol: w.chain.NativeSymbol,
	}, nil
}

// TransferToken sends an SPL token with TransferChecked, creating the
// recipient's associated token account when it does not exist yet.
func (w *Wallet) TransferToken(ctx context.Context, symbol, to, amount string) (web3.TransferResult, error) {
	if w.chain.IsNative(symbol) {
		return w.Transfer(ctx, to, amount)
	}
	tok, mint, err := w.lookupToken(symbol)
	if err != nil {
		return web3.TransferResult{}, err
	}
	recipient, err := parsePublicKey(to)
	if err != nil {
		return web3.TransferResult{}, err
	}
	units, err := parseAmount(amount, tok.Decimals)
	if err != nil {
		return web3.TransferResult{}, err
	}

	owner := w.key.PublicKey()
	source, _, err := sol.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return web3.TransferResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "计算关联代币账户失败")
	}
	destination, _, err := sol.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return web3.TransferResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "计算关联代币账户失败")
	}

	var instructions []sol.Instruction
	if _, err := w.client.GetAccountInfo(ctx, destination); err != nil {
		if !errors.Is(err, rpc.ErrNotFound) {
			return web3.TransferResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询接收方代币账户失败")
		}
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(owner, recipient, mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferCheckedInstruction(units, uint8(tok.Decimals), source, mint, destination, owner, nil).Build())

	sig, err := w.sendInstructions(ctx, instructions...)
	if err != nil {
		return web3.TransferResult{}, err
	}
	return web3.TransferResult{
		TxHash: sig,
		From:   owner.String(),
		To:     recipient.String(),
		Amount: web3.FormatUnits(new(big.Int).SetUint64(units), tok.Decimals),
		Symbol: tok.Symbol,
	}, nil
}

// SubmitPrepared signs a base58 wire transaction prepared by the checkout
// service and sends it. Signatures of other signers are kept as-is.
func (w *Wallet) SubmitPrepared(ctx context.Context, serialized string) (string, error) {
	raw, err := base58.Decode(strings.TrimSpace(serialized))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "预备交易不是合法的 base58")
	}
	tx, err := sol.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解码预备交易失败")
	}
	if err := w.signAsParticipant(tx); err != nil {
		return "", err
	}
	return w.send(ctx, tx)
}

// signAsParticipant 只填写本钱包对应的签名槽位。
func (w *Wallet) signAsParticipant(tx *sol.Transaction) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	signer := w.key.PublicKey()
	index := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			index = i
			break
		}
	}
	if index < 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "预备交易不需要本钱包签名")
	}

	payload, err := tx.Message.MarshalBinary()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeWalletFailure, err, "序列化交易消息失败")
	}
	sig, err := w.key.Sign(payload)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeWalletFailure, err, "签名交易失败")
	}
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, sol.Signature{})
	}
	tx.Signatures[index] = sig
	return nil
}

func (w *Wallet) sendInstructions(ctx context.Context, instructions ...sol.Instruction) (string, error) {
	recent, err := w.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取最新区块哈希失败")
	}
	payer := w.key.PublicKey()
	tx, err := sol.NewTransaction(instructions, recent.Value.Blockhash, sol.TransactionPayer(payer))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "构造交易失败")
	}
	if _, err := tx.Sign(func(key sol.PublicKey) *sol.PrivateKey {
		if key.Equals(payer) {
			return &w.key
		}
		return nil
	}); err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "签名交易失败")
	}
	return w.send(ctx, tx)
}

func (w *Wallet) send(ctx context.Context, tx *sol.Transaction) (string, error) {
	sig, err := w.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: w.commitment,
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "广播交易失败")
	}
	return sig.String(), nil
}

func (w *Wallet) lookupToken(symbol string) (web3.Token, sol.PublicKey, error) {
	tok, err := w.chain.Token(symbol)
	if err != nil {
		return web3.Token{}, sol.PublicKey{}, err
	}
	mint, err := sol.PublicKeyFromBase58(tok.Address)
	if err != nil {
		return web3.Token{}, sol.PublicKey{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "代币 "+tok.Symbol+" 的 mint 地址配置错误")
	}
	return tok, mint, nil
}

func parsePublicKey(value string) (sol.PublicKey, error) {
	key, err := sol.PublicKeyFromBase58(strings.TrimSpace(value))
	if err != nil {
		return sol.PublicKey{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无效的 Solana 地址: "+value)
	}
	return key, nil
}

func parseAmount(amount string, decimals int) (uint64, error) {
	value, err := web3.ParseUnits(amount, decimals)
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "金额超出范围: "+amount)
	}
	return value.Uint64(), nil
}

func isAccountMissing(err error) bool {
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "invalid param: could not find")
}
