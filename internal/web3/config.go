package web3

import (
	"fmt"
	"os"
	"sort"
	"strings"

	xerrors "ChainCart/internal/errors"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions 对应 configs/chains.yaml 的结构。
type ChainDefinitions struct {
	Chains map[string]Chain `yaml:"chains"`
}

// BuiltinChains 返回内置的链预设，文件中的同名定义会覆盖它们。
func BuiltinChains() ChainDefinitions {
	usdc := func(address string) []Token {
		return []Token{{Symbol: "USDC", Address: address, Decimals: 6}}
	}
	return ChainDefinitions{Chains: map[string]Chain{
		"base": {
			Family: FamilyEVM, ChainID: 8453, RPCURL: "https://mainnet.base.org",
			NativeSymbol: "ETH", NativeDecimals: 18, CheckoutMethod: "base",
			Description: "Base mainnet",
			Tokens:      usdc("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		},
		"base-sepolia": {
			Family: FamilyEVM, ChainID: 84532, RPCURL: "https://sepolia.base.org",
			NativeSymbol: "ETH", NativeDecimals: 18, CheckoutMethod: "base-sepolia",
			Description: "Base Sepolia testnet",
			Tokens:      usdc("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		},
		"solana": {
			Family: FamilySolana, RPCURL: "https://api.mainnet-beta.solana.com",
			NativeSymbol: "SOL", NativeDecimals: 9, CheckoutMethod: "solana",
			Description: "Solana mainnet-beta",
			Tokens:      usdc("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		},
		"solana-devnet": {
			Family: FamilySolana, RPCURL: "https://api.devnet.solana.com",
			NativeSymbol: "SOL", NativeDecimals: 9, CheckoutMethod: "solana",
			Description: "Solana devnet",
			Tokens:      usdc("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"),
		},
	}}
}

// LoadChainDefinitions 解析链配置文件并与内置预设合并。path 为空时只返回内置预设。
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	defs := BuiltinChains()
	if strings.TrimSpace(path) == "" {
		return defs, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取链配置失败")
	}

	var fromFile ChainDefinitions
	if err := yaml.Unmarshal(content, &fromFile); err != nil {
		return ChainDefinitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析链配置失败")
	}
	for name, chain := range fromFile.Chains {
		defs.Chains[strings.ToLower(name)] = chain
	}
	return defs, nil
}

// Resolve 返回指定名称的链预设；rpcURL 非空时覆盖预设中的 RPC 地址。
func (d ChainDefinitions) Resolve(name, rpcURL string) (Chain, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	chain, ok := d.Chains[name]
	if !ok {
		return Chain{}, xerrors.New(xerrors.CodeInitializationFailure,
			fmt.Sprintf("未知的链 %q，可选值: %s", name, strings.Join(d.Names(), ", ")))
	}
	chain.Name = name
	chain.Family = Family(strings.ToLower(string(chain.Family)))
	if chain.Family == "" {
		chain.Family = FamilyEVM
	}
	if strings.TrimSpace(rpcURL) != "" {
		chain.RPCURL = strings.TrimSpace(rpcURL)
	}
	if chain.RPCURL == "" {
		return Chain{}, xerrors.New(xerrors.CodeMissingCredential, "链 "+name+" 未配置 RPC 地址")
	}
	if chain.CheckoutMethod == "" {
		chain.CheckoutMethod = name
	}
	return chain, nil
}

// Names 返回排序后的链名称列表。
func (d ChainDefinitions) Names() []string {
	names := make([]string, 0, len(d.Chains))
	for name := range d.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
