package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"

	"stealthpay/internal/model"
)

// Config contains all configuration parameters for the application.
// Note: the keystore password is prompted at runtime and stored in memory -
// use GetKeystorePasswordBytes()
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`

	Chain string `envconfig:"CHAIN" default:"DEVNET"`

	MainnetRPCURL         string `envconfig:"MAINNET_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	MainnetStealthProgram string `envconfig:"MAINNET_STEALTH_PROGRAM_ID"`
	MainnetUSDCMint       string `envconfig:"MAINNET_USDC_MINT" default:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`

	DevnetRPCURL         string `envconfig:"DEVNET_RPC_URL" default:"https://api.devnet.solana.com"`
	DevnetStealthProgram string `envconfig:"DEVNET_STEALTH_PROGRAM_ID"`
	DevnetUSDCMint       string `envconfig:"DEVNET_USDC_MINT" default:"4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"`

	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	SignatureBatch int           `envconfig:"SIGNATURE_BATCH" default:"10"`
	SweepBatch     int           `envconfig:"SWEEP_BATCH" default:"50"`
	ResolveWorkers int           `envconfig:"RESOLVE_WORKERS" default:"4"`

	SettlementWorkers int `envconfig:"SETTLEMENT_WORKERS" default:"2"`
	SettlementDepth   int `envconfig:"SETTLEMENT_QUEUE_DEPTH" default:"16"`

	// FeePayerKeystorePath points at an encrypted keystore file; FeePayerKey
	// is a plaintext base58 fallback for environments without a keystore.
	FeePayerKeystorePath string `envconfig:"FEE_PAYER_KEYSTORE_PATH"`
	FeePayerKey          string `envconfig:"FEE_PAYER_KEY"`
}

// ChainConfig is the chain-dependent slice of the configuration.
type ChainConfig struct {
	ID             string
	RPCURL         string
	StealthProgram string
	USDCMint       string
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	cfg = &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.Chain != model.ChainSolanaMainnet && cfg.Chain != model.ChainSolanaDevnet {
		return fmt.Errorf("unknown chain %q", cfg.Chain)
	}
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// ActiveChain returns the chain configuration selected by CHAIN.
func (c *Config) ActiveChain() ChainConfig {
	if c.Chain == model.ChainSolanaMainnet {
		return ChainConfig{
			ID:             model.ChainSolanaMainnet,
			RPCURL:         c.MainnetRPCURL,
			StealthProgram: c.MainnetStealthProgram,
			USDCMint:       c.MainnetUSDCMint,
		}
	}
	return ChainConfig{
		ID:             model.ChainSolanaDevnet,
		RPCURL:         c.DevnetRPCURL,
		StealthProgram: c.DevnetStealthProgram,
		USDCMint:       c.DevnetUSDCMint,
	}
}

var passwordBytes []byte

// PromptForPassword prompts the user for the keystore password in the
// terminal. The password is read without echoing (hidden input) and stored in
// memory. Call this at startup before the server begins handling requests.
func PromptForPassword() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, "Enter keystore password: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("password cannot be empty")
	}

	passwordBytes = make([]byte, len(raw))
	copy(passwordBytes, raw)
	clear(raw)
	return nil
}

// GetKeystorePasswordBytes returns the password stored in memory (from
// PromptForPassword). Returns an error if the password was not set.
// Caller must zero the returned slice after use for security.
func GetKeystorePasswordBytes() ([]byte, error) {
	if len(passwordBytes) == 0 {
		return nil, errors.New("password not set: call PromptForPassword at startup")
	}
	out := make([]byte, len(passwordBytes))
	copy(out, passwordBytes)
	return out, nil
}
