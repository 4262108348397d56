package web3

import (
	"math/big"
	"regexp"
	"strings"

	xerrors "ChainCart/internal/errors"

	"github.com/shopspring/decimal"
)

// 只接受普通十进制写法，不接受科学计数法与负数。
var amountPattern = regexp.MustCompile(`^\+?(\d+(\.\d*)?|\.\d+)$`)

// ParseUnits 将十进制字符串转换为最小单位整数，例如 ParseUnits("1.5", 6) = 1500000。
// 小数位超过 decimals 时返回错误而不是截断。
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金额不能为空")
	}
	if decimals < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "精度不能为负数")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金额不能为负数: "+amount)
	}
	if !amountPattern.MatchString(amount) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "无法解析金额: "+amount)
	}

	value, err := decimal.NewFromString(strings.TrimPrefix(amount, "+"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无法解析金额: "+amount)
	}
	scaled := value.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "金额精度超过代币精度: "+amount)
	}
	return scaled.BigInt(), nil
}

// FormatUnits 将最小单位整数格式化为去掉多余 0 的十进制字符串。
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}
