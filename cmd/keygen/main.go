// keygen generates a settlement fee payer key and writes it to an encrypted
// keystore file.
// Usage: go run ./cmd/keygen -out feepayer.spk -chain DEVNET
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"

	"stealthpay/internal/config"
	"stealthpay/internal/keystore"
)

func main() {
	out := flag.String("out", "feepayer.spk", "keystore output path")
	chain := flag.String("chain", "DEVNET", "chain the key is intended for")
	flag.Parse()

	if err := run(*out, *chain); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(out, chain string) error {
	if err := config.PromptForPassword(); err != nil {
		return err
	}
	password, err := config.GetKeystorePasswordBytes()
	if err != nil {
		return err
	}
	defer clear(password)

	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	if err := keystore.Save(out, chain, key, password); err != nil {
		return err
	}
	fmt.Println("fee payer address:", key.PublicKey().String())
	fmt.Println("keystore written:", out)
	return nil
}
