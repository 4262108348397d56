// Package web3 defines the wallet capability used by the shopping tools and
// the chain presets it runs against. Concrete wallets live in the ethereum
// and solana subpackages; provider selects one of them from a chain preset.
package web3
