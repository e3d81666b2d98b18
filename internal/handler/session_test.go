package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/"},
		{"/password/change", "/password/change"},
		{"/login?next=%2F", "/login?next=%2F"},
		{"https://evil.example", "/"},
		{"//evil.example", "/"},
		{"/\\evil.example", "/"},
		{"password", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			assert.Equal(t, tt.want, localPath(tt.next))
		})
	}
}
