package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"already canonical", "2024 fc 123", "2024 fc 123"},
		{"uppercase", "2024 FC 123", "2024 fc 123"},
		{"abbreviation periods", "2024 F.C. 123", "2024 fc 123"},
		{"trailing punctuation", "2024 FC 123.", "2024 fc 123"},
		{"extra whitespace", "  2024   FC\t123 ", "2024 fc 123"},
		{"scr citation", "[2023] 1 S.C.R. 45", "2023 1 scr 45"},
		{"empty", "", ""},
		{"punctuation only", "...,;", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := "Singh v. Canada, 2024 F.C. 123"
	once := Normalize(raw)
	assert.Equal(t, once, Normalize(once))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("2024 FC 123", "2024 f.c. 123"))
	assert.False(t, Equal("2024 FC 123", "2024 FC 124"))
	// Two empty citations never "match".
	assert.False(t, Equal("", ""))
}

func TestContainedIn(t *testing.T) {
	assert.True(t, ContainedIn("2024 FC 123", "judicial review 2024 FC 123 federal court"))
	assert.True(t, ContainedIn("2024 F.C. 123", "what happened in 2024 fc 123?"))
	assert.False(t, ContainedIn("2024 FC 123", "judicial review federal court"))
	assert.False(t, ContainedIn("", "anything"))
}
