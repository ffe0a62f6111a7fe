package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostMatches(t *testing.T) {
	tests := []struct {
		name       string
		host       string
		registered string
		want       bool
	}{
		{"exact", "decisions.example.gc.ca", "decisions.example.gc.ca", true},
		{"subdomain", "www.decisions.example.gc.ca", "decisions.example.gc.ca", true},
		{"case insensitive", "Decisions.Example.GC.CA", "decisions.example.gc.ca", true},
		{"port stripped", "decisions.example.gc.ca:8443", "decisions.example.gc.ca", true},
		{"trailing dot stripped", "decisions.example.gc.ca.", "decisions.example.gc.ca", true},
		{"suffix spoof", "decisions.example.gc.ca.attacker.test", "decisions.example.gc.ca", false},
		{"prefix spoof", "evildecisions.example.gc.ca", "decisions.example.gc.ca", false},
		{"sibling domain", "decisions.other.gc.ca", "decisions.example.gc.ca", false},
		{"deep subdomain of registered parent", "a.b.example.gc.ca", "example.gc.ca", true},
		{"dot boundary", "notexample.gc.ca", "example.gc.ca", false},
		{"empty host", "", "decisions.example.gc.ca", false},
		{"empty registered", "decisions.example.gc.ca", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HostMatches(tt.host, tt.registered))
		})
	}
}
