package reportcsv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_QuotedCommas(t *testing.T) {
	body := []byte("Event Time,Media Source,Event Name\n" +
		"2024-05-01 10:00:00,\"ads, inc\",\"purchase, big\"\n" +
		"2024-05-02 11:00:00,organic,af_login\n")

	tbl, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"Event Time", "Media Source", "Event Name"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "ads, inc", tbl.Rows[0][1])
	assert.Equal(t, "purchase, big", tbl.Rows[0][2])
}

func TestParse_RaggedRowsAndBOM(t *testing.T) {
	tbl, err := Parse([]byte("\ufeffDate,Clicks\n2024-05-01\n2024-05-02,3,extra\n"))
	require.NoError(t, err)
	assert.Equal(t, "Date", tbl.Header[0])
	require.Len(t, tbl.Rows, 2)

	_, ok := Cell(tbl.Rows[0], 1)
	assert.False(t, ok)
	v, ok := Cell(tbl.Rows[1], 1)
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestParse_Empty(t *testing.T) {
	tbl, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, tbl.Empty())

	tbl, err = Parse([]byte("Date,Clicks\n"))
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Len(t, tbl.Header, 2)
}

func TestInt(t *testing.T) {
	tests := map[string]int64{
		"":      0,
		"12":    12,
		" 7 ":   7,
		"12.0":  12,
		"1,234": 1234,
		"-3":    0,
		"n/a":   0,
		"NaN":   0,
		"Inf":   0,

		"1e30":                 0,
		"9.3e18":               0,
		"99999999999999999999": 0,
		"9.2e18":               9200000000000000000,
	}
	for in, want := range tests {
		assert.Equal(t, want, Int(in), "Int(%q)", in)
	}
}

func TestDatePart(t *testing.T) {
	d, ok := DatePart("2024-05-01 10:11:12")
	assert.True(t, ok)
	assert.Equal(t, "2024-05-01", d)

	d, ok = DatePart("2024-05-01T10:11:12Z")
	assert.True(t, ok)
	assert.Equal(t, "2024-05-01", d)

	_, ok = DatePart("")
	assert.False(t, ok)
	_, ok = DatePart("yesterday at noon")
	assert.False(t, ok)
}
