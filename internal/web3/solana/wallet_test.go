package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/web3"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdcMint = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// fakeNode 模拟 Solana JSON-RPC 节点，记录收到的交易并校验签名。
type fakeNode struct {
	t *testing.T

	mu            sync.Mutex
	methods       []string
	sent          []*sol.Transaction
	lamports      uint64
	tokenAmount   string
	tokenMissing  bool
	destinationOK bool
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = append(n.methods, req.Method)

	ctxValue := map[string]any{"slot": 1}
	var result any
	var rpcErr map[string]any
	switch req.Method {
	case "getBalance":
		result = map[string]any{"context": ctxValue, "value": n.lamports}
	case "getLatestBlockhash":
		var hash sol.Hash
		hash[0] = 7
		result = map[string]any{"context": ctxValue, "value": map[string]any{
			"blockhash":            hash.String(),
			"lastValidBlockHeight": 100,
		}}
	case "getTokenAccountBalance":
		if n.tokenMissing {
			rpcErr = map[string]any{"code": -32602, "message": "Invalid param: could not find account"}
			break
		}
		result = map[string]any{"context": ctxValue, "value": map[string]any{
			"amount": n.tokenAmount, "decimals": 6, "uiAmountString": "x",
		}}
	case "getAccountInfo":
		if n.destinationOK {
			result = map[string]any{"context": ctxValue, "value": map[string]any{
				"lamports": 2039280, "owner": sol.TokenProgramID.String(), "executable": false,
				"rentEpoch": 0, "data": []any{"", "base64"},
			}}
		} else {
			result = map[string]any{"context": ctxValue, "value": nil}
		}
	case "sendTransaction":
		encoded, _ := req.Params[0].(string)
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			n.t.Errorf("decode tx: %v", err)
			return
		}
		tx, err := sol.TransactionFromDecoder(bin.NewBinDecoder(raw))
		if err != nil {
			n.t.Errorf("parse tx: %v", err)
			return
		}
		n.sent = append(n.sent, tx)
		result = tx.Signatures[0].String()
	default:
		rpcErr = map[string]any{"code": -32601, "message": "method not found"}
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) sentTxs() []*sol.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*sol.Transaction(nil), n.sent...)
}

func (n *fakeNode) update(fn func(n *fakeNode)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n)
}

func newTestWallet(t *testing.T, node *fakeNode) (*Wallet, sol.PrivateKey) {
	t.Helper()
	node.t = t
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	key, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)
	wallet, err := NewWallet(Config{
		Chain: web3.Chain{
			Name: "solana-devnet", Family: web3.FamilySolana, RPCURL: srv.URL,
			NativeSymbol: "SOL", NativeDecimals: 9,
			Tokens: []web3.Token{{Symbol: "USDC", Address: usdcMint, Decimals: 6}},
		},
		PrivateKey: key.String(),
	})
	require.NoError(t, err)
	t.Cleanup(wallet.Close)
	return wallet, key
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func verifySigned(t *testing.T, tx *sol.Transaction, signer sol.PublicKey) {
	t.Helper()
	payload, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	for i, key := range tx.Message.AccountKeys[:tx.Message.Header.NumRequiredSignatures] {
		if key.Equals(signer) {
			assert.True(t, tx.Signatures[i].Verify(signer, payload), "signature %d does not verify", i)
			return
		}
	}
	t.Fatalf("signer %s not found in transaction", signer)
}

func TestParsePrivateKey(t *testing.T) {
	_, err := ParsePrivateKey("")
	assert.Equal(t, xerrors.CodeMissingCredential, xerrors.CodeOf(err))

	_, err = ParsePrivateKey("0xnot-base58")
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))

	key, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)
	parsed, err := ParsePrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), parsed.PublicKey())
}

func TestBalance(t *testing.T) {
	node := &fakeNode{lamports: 1_500_000_000}
	wallet, _ := newTestWallet(t, node)

	balance, err := wallet.Balance(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "1.5", balance.Amount)
	assert.Equal(t, "SOL", balance.Symbol)
}

func TestTokenBalance(t *testing.T) {
	node := &fakeNode{tokenAmount: "2500000"}
	wallet, _ := newTestWallet(t, node)

	balance, err := wallet.TokenBalance(testContext(t), "usdc")
	require.NoError(t, err)
	assert.Equal(t, "2.5", balance.Amount)

	node.update(func(n *fakeNode) { n.tokenMissing = true })
	balance, err = wallet.TokenBalance(testContext(t), "USDC")
	require.NoError(t, err)
	assert.Equal(t, "0", balance.Amount)

	_, err = wallet.TokenBalance(testContext(t), "BONK")
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestTransferSignsSystemTransfer(t *testing.T) {
	node := &fakeNode{}
	wallet, key := newTestWallet(t, node)
	to, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)

	result, err := wallet.Transfer(testContext(t), to.PublicKey().String(), "0.25")
	require.NoError(t, err)
	assert.Equal(t, "0.25", result.Amount)

	sent := node.sentTxs()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, result.TxHash, tx.Signatures[0].String())
	verifySigned(t, tx, key.PublicKey())
	require.Len(t, tx.Message.Instructions, 1)
	program := tx.Message.AccountKeys[tx.Message.Instructions[0].ProgramIDIndex]
	assert.Equal(t, sol.SystemProgramID, program)
}

func TestTransferTokenCreatesRecipientAccount(t *testing.T) {
	node := &fakeNode{}
	wallet, key := newTestWallet(t, node)
	to, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)

	_, err = wallet.TransferToken(testContext(t), "USDC", to.PublicKey().String(), "1")
	require.NoError(t, err)
	sent := node.sentTxs()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].Message.Instructions, 2)
	verifySigned(t, sent[0], key.PublicKey())

	node.update(func(n *fakeNode) { n.destinationOK = true })
	_, err = wallet.TransferToken(testContext(t), "USDC", to.PublicKey().String(), "1")
	require.NoError(t, err)
	sent = node.sentTxs()
	require.Len(t, sent, 2)
	assert.Len(t, sent[1].Message.Instructions, 1)
}

func TestSubmitPreparedFillsWalletSignature(t *testing.T) {
	node := &fakeNode{}
	wallet, key := newTestWallet(t, node)
	merchant, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)

	var hash sol.Hash
	hash[0] = 9
	prepared, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(1000, key.PublicKey(), merchant.PublicKey()).Build()},
		hash,
		sol.TransactionPayer(key.PublicKey()),
	)
	require.NoError(t, err)
	prepared.Signatures = make([]sol.Signature, prepared.Message.Header.NumRequiredSignatures)
	raw, err := prepared.MarshalBinary()
	require.NoError(t, err)

	sig, err := wallet.SubmitPrepared(testContext(t), base58.Encode(raw))
	require.NoError(t, err)
	sent := node.sentTxs()
	require.Len(t, sent, 1)
	assert.Equal(t, sig, sent[0].Signatures[0].String())
	verifySigned(t, sent[0], key.PublicKey())
}

func TestSubmitPreparedRejectsForeignTransaction(t *testing.T) {
	node := &fakeNode{}
	wallet, _ := newTestWallet(t, node)
	other, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)

	prepared, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(1, other.PublicKey(), other.PublicKey()).Build()},
		sol.Hash{1},
		sol.TransactionPayer(other.PublicKey()),
	)
	require.NoError(t, err)
	prepared.Signatures = make([]sol.Signature, prepared.Message.Header.NumRequiredSignatures)
	raw, err := prepared.MarshalBinary()
	require.NoError(t, err)

	_, err = wallet.SubmitPrepared(testContext(t), base58.Encode(raw))
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	assert.Empty(t, node.sentTxs())

	_, err = wallet.SubmitPrepared(testContext(t), "0OIl")
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}
