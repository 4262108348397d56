package ethereum

import (
	"math/big"

	xerrors "ChainCart/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// PreparedTx 是结账服务返回的交易中钱包需要的字段。
type PreparedTx struct {
	Type    uint8
	ChainID *big.Int
	To      *common.Address
	Value   *big.Int
	Data    []byte
}

// 签名字段可选，结账服务通常返回未签名的序列化交易。
type legacyEnvelope struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	V        *big.Int `rlp:"optional"`
	R        *big.Int `rlp:"optional"`
	S        *big.Int `rlp:"optional"`
}

type accessListEnvelope struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList coretypes.AccessList
	V          *big.Int `rlp:"optional"`
	R          *big.Int `rlp:"optional"`
	S          *big.Int `rlp:"optional"`
}

type dynamicFeeEnvelope struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList coretypes.AccessList
	V          *big.Int `rlp:"optional"`
	R          *big.Int `rlp:"optional"`
	S          *big.Int `rlp:"optional"`
}

// DecodePrepared 解析 legacy、EIP-2930 与 EIP-1559 三种编码，签名与否均可。
func DecodePrepared(raw []byte) (*PreparedTx, error) {
	if len(raw) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "预备交易为空")
	}

	var (
		out PreparedTx
		err error
	)
	switch {
	case raw[0] >= 0xc0:
		var env legacyEnvelope
		err = rlp.DecodeBytes(raw, &env)
		out = PreparedTx{Type: coretypes.LegacyTxType, To: env.To, Value: env.Value, Data: env.Data}
		out.ChainID = legacyChainID(env.V, env.R, env.S)
	case raw[0] == coretypes.AccessListTxType:
		var env accessListEnvelope
		err = rlp.DecodeBytes(raw[1:], &env)
		out = PreparedTx{Type: coretypes.AccessListTxType, ChainID: env.ChainID, To: env.To, Value: env.Value, Data: env.Data}
	case raw[0] == coretypes.DynamicFeeTxType:
		var env dynamicFeeEnvelope
		err = rlp.DecodeBytes(raw[1:], &env)
		out = PreparedTx{Type: coretypes.DynamicFeeTxType, ChainID: env.ChainID, To: env.To, Value: env.Value, Data: env.Data}
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "不支持的交易类型")
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解码预备交易失败")
	}
	if out.Value == nil {
		out.Value = new(big.Int)
	}
	return &out, nil
}

// legacyChainID 从 legacy 交易的 v 字段推导链 ID。未签名的 EIP-155 交易中
// r、s 为 0，v 直接就是链 ID；已签名时 v = chainID*2 + 35/36。
func legacyChainID(v, r, s *big.Int) *big.Int {
	if v == nil || v.Sign() == 0 {
		return nil
	}
	if isZero(r) && isZero(s) {
		return new(big.Int).Set(v)
	}
	if v.Cmp(big.NewInt(35)) >= 0 {
		return new(big.Int).Rsh(new(big.Int).Sub(v, big.NewInt(35)), 1)
	}
	return nil
}

func isZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}
