package automations

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/Shopify/go-lua"
)

func registerCryptoLibrary(l *lua.State) {
	l.Global("digithab")

	if l.IsNil(-1) {
		l.Pop(1)
		return
	}

	lua.NewLibrary(l, cryptoLibrary())

	l.SetField(-2, "crypto")

	l.Pop(1)
}

// cryptoLibrary returns a list of Lua functions that provide hashing and
// token generation. These functions are available under the `digithab.crypto`
// table in scripts.
func cryptoLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// sha256 calculates the SHA256 hash of a given string.
		//
		// @param input string The string to hash.
		// @return string The SHA256 hash encoded as a hexadecimal string.
		{Name: "sha256", Function: func(l *lua.State) int {
			inputString := lua.CheckString(l, 2)

			hash := sha256.Sum256([]byte(inputString))
			l.PushString(hex.EncodeToString(hash[:]))
			return 1
		}},
		// hmac_sha256 calculates the HMAC-SHA256 of a message with a given secret.
		//
		// @param secret string The secret key.
		// @param message string The message to authenticate.
		// @return string The HMAC-SHA256 encoded as a hexadecimal string.
		{Name: "hmac_sha256", Function: func(l *lua.State) int {
			secret := lua.CheckString(l, 2)
			message := lua.CheckString(l, 3)

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write([]byte(message))

			l.PushString(hex.EncodeToString(mac.Sum(nil)))
			return 1
		}},
		// random_token returns a cryptographically random token.
		//
		// @param bytes int (optional) The number of random bytes to draw.
		// Defaults to 32.
		// @return string The token encoded as a hexadecimal string.
		{Name: "random_token", Function: func(l *lua.State) int {
			size := lua.OptInteger(l, 2, 32)
			if size <= 0 {
				lua.ArgumentError(l, 2, "size must be positive")
				return 0
			}

			buf := make([]byte, size)
			if _, err := rand.Read(buf); err != nil {
				lua.Errorf(l, "generating token: %s", err.Error())
				return 0
			}

			l.PushString(hex.EncodeToString(buf))
			return 1
		}},
	}
}
