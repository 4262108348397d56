package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/web3"
	"ChainCart/internal/web3/ethereum"
	"ChainCart/internal/web3/solana"
)

// Factory 根据链预设与私钥构造钱包。
type Factory func(ctx context.Context, chain web3.Chain, privateKey string) (web3.Wallet, error)

// Registry 按链族保存钱包工厂，启动时根据配置选择其中一种实现。
type Registry struct {
	mu        sync.RWMutex
	factories map[web3.Family]Factory
}

// NewRegistry 返回已注册 EVM 与 Solana 两种实现的注册表。
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[web3.Family]Factory)}
	r.Register(web3.FamilyEVM, func(ctx context.Context, chain web3.Chain, key string) (web3.Wallet, error) {
		return ethereum.NewWallet(ctx, ethereum.Config{Chain: chain, PrivateKey: key})
	})
	r.Register(web3.FamilySolana, func(_ context.Context, chain web3.Chain, key string) (web3.Wallet, error) {
		return solana.NewWallet(solana.Config{Chain: chain, PrivateKey: key})
	})
	return r
}

// Register 注册或替换某个链族的工厂。
func (r *Registry) Register(family web3.Family, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[web3.Family(strings.ToLower(string(family)))] = factory
}

// Open 为链预设创建钱包。
func (r *Registry) Open(ctx context.Context, chain web3.Chain, privateKey string) (web3.Wallet, error) {
	if r == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的钱包注册表")
	}
	r.mu.RLock()
	factory, ok := r.factories[chain.Family]
	r.mu.RUnlock()
	if !ok {
		return nil, xerrors.New(xerrors.CodeInitializationFailure,
			"链 "+chain.Name+" 使用了不支持的类型 "+string(chain.Family)+"，可选值: "+strings.Join(r.Families(), ", "))
	}
	return factory(ctx, chain, privateKey)
}

// Families returns the registered chain families.
func (r *Registry) Families() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for family := range r.factories {
		names = append(names, string(family))
	}
	sort.Strings(names)
	return names
}

// OpenConfigured 解析链预设文件并打开选定链上的钱包。
func OpenConfigured(ctx context.Context, chainsFile, chainName, rpcURL, privateKey string) (web3.Wallet, error) {
	defs, err := web3.LoadChainDefinitions(chainsFile)
	if err != nil {
		return nil, err
	}
	chain, err := defs.Resolve(chainName, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewRegistry().Open(ctx, chain, privateKey)
}
