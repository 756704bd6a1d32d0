package sheet

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SheetNames(t *testing.T) {
	data := buildWorkbook(t,
		fixtureSheet{name: "Average Summary", rows: [][]string{{"x"}}},
		fixtureSheet{name: "Analysis SUMMARY", rows: [][]string{{"y"}}},
		fixtureSheet{name: "Acme Ltd", rows: supplierRows()},
	)

	wb, err := Open(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Average Summary", "Analysis SUMMARY", "Acme Ltd"}, wb.SheetNames())
}

func TestOpen_Invalid(t *testing.T) {
	_, err := Open([]byte("definitely not a zip archive"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidWorkbook))

	_, err = Open(nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidWorkbook))
}

func TestSelectSheets(t *testing.T) {
	tests := []struct {
		name        string
		in          []string
		skipSummary bool
		want        []string
	}{
		{"three or more skips two", []string{"Avg", "Analysis", "A", "B"}, true, []string{"A", "B"}},
		{"two skips one", []string{"Summary", "A"}, true, []string{"A"}},
		{"single kept", []string{"A"}, true, []string{"A"}},
		{"empty", nil, true, []string{}},
		{"skip disabled", []string{"Avg", "Analysis", "A"}, false, []string{"Avg", "Analysis", "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectSheets(tt.in, tt.skipSummary)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectSheets_DoesNotAliasInput(t *testing.T) {
	in := []string{"Avg", "Analysis", "A"}
	got := SelectSheets(in, true)
	got[0] = "changed"
	assert.Equal(t, "A", in[2])
}
