package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/jroosing/pkarr/internal/keys"
)

func main() {
	var (
		seedHex = flag.String("seed", "", "Derive from a 64-char hex seed instead of generating")
		quiet   = flag.Bool("quiet", false, "Print only the public key")
	)
	flag.Parse()

	var (
		kp  *keys.Keypair
		err error
	)
	if *seedHex != "" {
		var seed []byte
		seed, err = hex.DecodeString(*seedHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid seed: %v\n", err)
			os.Exit(1)
		}
		kp, err = keys.KeypairFromSeed(seed)
	} else {
		kp, err = keys.GenerateKeypair()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen failed: %v\n", err)
		os.Exit(1)
	}

	if *quiet {
		fmt.Println(kp.PublicKey())
		return
	}
	fmt.Printf("public key: %s\n", kp.PublicKey())
	fmt.Printf("seed:       %s\n", hex.EncodeToString(kp.Seed()))
}
