package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		contains []string
		excludes []string
	}{
		{
			name:     "plain text",
			in:       "The average close price is 278.26",
			contains: []string{"<p>The average close price is 278.26</p>"},
		},
		{
			name:     "emphasis and list",
			in:       "**Steps**\n\n1. load\n2. average",
			contains: []string{"<strong>Steps</strong>", "<ol>", "<li>load</li>"},
		},
		{
			name:     "table",
			in:       "| ticker | close |\n|---|---|\n| AAPL | 185.64 |",
			contains: []string{"<table>", "<td>AAPL</td>"},
		},
		{
			name:     "raw html is dropped",
			in:       "<script>alert(1)</script>",
			excludes: []string{"<script>"},
		},
		{
			name: "empty",
			in:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Markdown(tt.in)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, bad := range tt.excludes {
				assert.NotContains(t, got, bad)
			}
		})
	}
}
