// stealthaddr derives a one-time stealth address for a payee's published
// meta keys and prints the address together with the transport payload the
// payer must attach as the transaction memo.
// Usage: go run ./cmd/stealthaddr -spend <base58|hex> -view <base58|hex> [-qr out.png]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
	qrcode "github.com/skip2/go-qrcode"

	"stealthpay/internal/stealth"
)

func main() {
	spend := flag.String("spend", "", "payee meta spend public key (base58 or hex)")
	view := flag.String("view", "", "payee meta view public key (base58 or hex)")
	qrPath := flag.String("qr", "", "optional path to write the address as a QR code PNG")
	flag.Parse()

	if *spend == "" || *view == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*spend, *view, *qrPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(spend, view, qrPath string) error {
	spendPub, err := stealth.ParseKey(spend)
	if err != nil {
		return fmt.Errorf("invalid spend key: %w", err)
	}
	viewPub, err := stealth.ParseKey(view)
	if err != nil {
		return fmt.Errorf("invalid view key: %w", err)
	}

	eph, err := stealth.GenerateEphemeral()
	if err != nil {
		return err
	}

	_, address, err := stealth.DerivePub(spendPub, viewPub, eph.Priv)
	if err != nil {
		return err
	}
	payload, err := stealth.EncryptTransport(eph.Priv, viewPub)
	if err != nil {
		return err
	}

	fmt.Println("stealth address:", address)
	fmt.Println("ephemeral pubkey:", base58.Encode(eph.Pub))
	fmt.Println("transport memo:", payload)

	if qrPath != "" {
		if err := qrcode.WriteFile(address, qrcode.Medium, 256, qrPath); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}
		fmt.Println("qr code written:", qrPath)
	}
	return nil
}
