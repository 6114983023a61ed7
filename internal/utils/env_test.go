package utils

import "testing"

func TestEnvOr(t *testing.T) {
	const key = "_ENIGMA_TEST_ENV_OR"
	cases := map[string]string{
		"":          "fallback",
		"   ":       "fallback",
		"value":     "value",
		" padded\n": "padded",
	}
	for raw, want := range cases {
		t.Setenv(key, raw)
		if got := EnvOr(key, "fallback"); got != want {
			t.Fatalf("EnvOr(%q) = %q, want %q", raw, got, want)
		}
	}
}
