package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCSVCell(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Ada", "Ada"},
		{"", ""},
		{"=HYPERLINK(\"http://x\")", "'=HYPERLINK(\"http://x\")"},
		{"+1", "'+1"},
		{"-2+3", "'-2+3"},
		{"@SUM(A1)", "'@SUM(A1)"},
		{"\tcmd", "'\tcmd"},
		{"a=b", "a=b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, csvCell(tt.in), tt.in)
	}
}
