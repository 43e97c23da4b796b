package automations

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sha256Helper(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

func hmacHelper(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCryptoLibrary(t *testing.T) {
	tests := []struct {
		name          string
		luaCode       string
		validatorFunc func(t *testing.T, got any)
	}{
		{
			name:    "crypto:sha256 should return the correct hash",
			luaCode: `return digithab.crypto:sha256("digithab")`,
			validatorFunc: func(t *testing.T, got any) {
				str, ok := got.(string)
				if !ok {
					t.Fatalf("\nwanted:\nstring\ngot:\n%T", got)
				}

				want := sha256Helper("digithab")
				if str != want {
					t.Errorf("\nwanted:\n%s\ngot:\n%s", want, str)
				}
			},
		},
		{
			name:    "crypto:hmac_sha256 should return the correct hash",
			luaCode: `return digithab.crypto:hmac_sha256("s3cr3t", "digithab")`,
			validatorFunc: func(t *testing.T, got any) {
				str, ok := got.(string)
				if !ok {
					t.Fatalf("\nwanted:\nstring\ngot:\n%T", got)
				}

				want := hmacHelper("s3cr3t", "digithab")
				if str != want {
					t.Errorf("\nwanted:\n%s\ngot:\n%s", want, str)
				}
			},
		},
		{
			name:    "crypto:random_token should default to 32 bytes of hex",
			luaCode: `return digithab.crypto:random_token()`,
			validatorFunc: func(t *testing.T, got any) {
				str, ok := got.(string)
				if !ok {
					t.Fatalf("\nwanted:\nstring\ngot:\n%T", got)
				}

				if len(str) != 64 {
					t.Errorf("\nwanted:\n64 hex chars\ngot:\n%d", len(str))
				}
				if _, err := hex.DecodeString(str); err != nil {
					t.Errorf("\nwanted:\nhex string\ngot:\n%s", str)
				}
			},
		},
		{
			name:    "crypto:random_token should honour the requested size",
			luaCode: `return digithab.crypto:random_token(16)`,
			validatorFunc: func(t *testing.T, got any) {
				str, ok := got.(string)
				if !ok {
					t.Fatalf("\nwanted:\nstring\ngot:\n%T", got)
				}

				if len(str) != 32 {
					t.Errorf("\nwanted:\n32 hex chars\ngot:\n%d", len(str))
				}
			},
		},
		{
			name: "crypto:random_token should return different tokens on each call",
			luaCode: `
				local a = digithab.crypto:random_token()
				local b = digithab.crypto:random_token()
				if a == b then return "same" end
				return "different"
			`,
			validatorFunc: func(t *testing.T, got any) {
				if got != "different" {
					t.Errorf("\nwanted:\ndifferent\ngot:\n%v", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runtime, _ := setupTestScript(t, "")

			err := runtime.ExecuteLua(tt.luaCode)
			if err != nil {
				t.Fatalf("executing lua code %s : %v", tt.luaCode, err)
			}

			got := goValue(runtime.LuaState, -1)

			if tt.validatorFunc != nil {
				tt.validatorFunc(t, got)
			}
		})
	}
}
