// Command genkey generates a random key for the server-side signature
// transform. Set the output as SIGNATURE_KEY.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}

	fmt.Printf("Signature key (base64): %s\n", base64.StdEncoding.EncodeToString(buf))
}
