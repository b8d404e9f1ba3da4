package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/uhyunpark/secret-orderbook/pkg/crypto"
)

// sign-msg wraps a message in a signed request for /api/v1/execute or
// /api/v1/factory/execute.
//
//	sign-msg -key <hex> '{"withdraw_order":{}}'
//	echo '{"create_viewing_key":{"entropy":"x"}}' | sign-msg -key <hex>
func main() {
	keyHex := flag.String("key", os.Getenv("PRIVATE_KEY"), "hex private key (default $PRIVATE_KEY); a new key is generated if empty")
	nonce := flag.Uint64("nonce", uint64(time.Now().UnixMilli()), "request nonce, must exceed the last one the node accepted from this key")
	flag.Parse()

	var raw []byte
	var err error
	if flag.NArg() > 0 {
		raw = []byte(flag.Arg(0))
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading message: %v\n", err)
		os.Exit(1)
	}

	// the server verifies the exact bytes, so sign the compact form it will see
	var compact bytes.Buffer
	if err := json.Compact(&compact, bytes.TrimSpace(raw)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: message is not valid JSON: %v\n", err)
		os.Exit(1)
	}

	var signer *crypto.Signer
	if *keyHex == "" {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Fprintf(os.Stderr, "Generated key for %s: %s (KEEP SECRET!)\n", signer.Address().Hex(), signer.PrivateKeyHex())
		}
	} else {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading key: %v\n", err)
		os.Exit(1)
	}

	env, err := crypto.Seal(signer, *nonce, compact.Bytes())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing: %v\n", err)
		os.Exit(1)
	}
	if err := env.Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: signature did not verify: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding request: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "POST this body to /api/v1/execute (handle messages) or /api/v1/factory/execute (view keys)")
}
