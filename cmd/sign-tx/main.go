// Command sign-tx is a developer helper: it generates a throwaway key,
// signs a "key=value" payload the way pkg/worldstate expects, and prints
// the curl invocation to submit it against a running RPU's /tx endpoint.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/praxis-chain/rpubft/pkg/crypto"
)

func main() {
	payload := flag.String("payload", "greeting=hello", "transaction payload, \"key=value\"")
	addr := flag.String("addr", "http://localhost:8080", "RPU status API base address")
	flag.Parse()

	signer, err := crypto.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}

	sig, err := signer.SignMessage([]byte(*payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign payload: %v\n", err)
		os.Exit(1)
	}

	hash := ethcrypto.Keccak256Hash([]byte(*payload))
	if !crypto.VerifySignature(signer.Address(), hash.Bytes(), sig) {
		fmt.Fprintln(os.Stderr, "self-check failed: signature does not verify")
		os.Exit(1)
	}

	fmt.Printf("signer:    0x%s\n", signer.Address().Hex()[2:])
	fmt.Printf("payload:   %s\n", *payload)
	fmt.Printf("signature: 0x%s\n", hex.EncodeToString(sig))
	fmt.Println()
	fmt.Println("submit with:")
	fmt.Printf(`curl -X POST %s/tx -H 'Content-Type: application/json' -d '{"payload":"0x%s","signature":"0x%s","signer":"0x%s"}'`+"\n",
		*addr,
		hex.EncodeToString([]byte(*payload)),
		hex.EncodeToString(sig),
		signer.Address().Hex()[2:],
	)
}
