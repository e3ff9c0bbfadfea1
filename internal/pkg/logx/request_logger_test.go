package logx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.77:5123":          "203.0.113.0",
		"198.51.100.9":               "198.51.100.0",
		"127.0.0.1:80":               "127.0.0.1",
		"[2001:db8:1:2:3:4:5:6]:443": "2001:db8:1:2::",
		"not-an-ip":                  "unknown_ip",
	}

	for in, want := range cases {
		require.Equal(t, want, anonymizeIP(in), in)
	}
}
