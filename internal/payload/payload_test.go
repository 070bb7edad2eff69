package payload

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	june1   = civil.Date{Year: 2024, Month: time.June, Day: 1}
	half230 = civil.Time{Hour: 14, Minute: 30}
)

func TestHumanFormat(t *testing.T) {
	got, err := Human{}.Format("12345", june1, half230)
	require.NoError(t, err)
	assert.Equal(t, "12345 - 01/06/2024 14:30", got)
}

func TestHumanFormatPadsClock(t *testing.T) {
	got, err := Human{}.Format("7", civil.Date{Year: 2025, Month: time.January, Day: 9}, civil.Time{Hour: 8, Minute: 5})
	require.NoError(t, err)
	assert.Equal(t, "7 - 09/01/2025 08:05", got)
}

func TestMachineFormat(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"replaces second field", "ABC|0000000000", "ABC|202406011430"},
		{"appends when no delimiter", "ABC", "ABC|202406011430"},
		{"keeps trailing fields", "ABC|old|tail", "ABC|202406011430|tail"},
		{"empty second field", "ABC|", "ABC|202406011430"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Machine{Delimiter: "|"}.Format(tt.code, june1, half230)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMachineFormatCustomDelimiter(t *testing.T) {
	got, err := Machine{Delimiter: ";"}.Format("ABC;x", june1, half230)
	require.NoError(t, err)
	assert.Equal(t, "ABC;202406011430", got)

	got, err = Machine{}.Format("ABC", june1, half230)
	require.NoError(t, err)
	assert.Equal(t, "ABC|202406011430", got)
}

func TestFormatRejectsMissingInput(t *testing.T) {
	for _, f := range []Formatter{Human{}, Machine{Delimiter: "|"}} {
		_, err := f.Format("", june1, half230)
		assert.ErrorIs(t, err, ErrMissingCode)

		_, err = f.Format("   ", june1, half230)
		assert.ErrorIs(t, err, ErrMissingCode)

		_, err = f.Format("12345", civil.Date{}, half230)
		assert.ErrorIs(t, err, ErrMissingDate)
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	for _, f := range []Formatter{Human{}, Machine{Delimiter: "|"}} {
		first, err := f.Format("ABC|1", june1, half230)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := f.Format("ABC|1", june1, half230)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestToken(t *testing.T) {
	assert.Equal(t, "202406011430", Token(june1, half230))
	assert.Equal(t, "000101010000", Token(civil.Date{Year: 1, Month: time.January, Day: 1}, civil.Time{}))
}

func TestForPolicy(t *testing.T) {
	f, err := ForPolicy("human", "|")
	require.NoError(t, err)
	assert.IsType(t, Human{}, f)

	f, err = ForPolicy(" MACHINE ", ";")
	require.NoError(t, err)
	assert.Equal(t, Machine{Delimiter: ";"}, f)

	_, err = ForPolicy("both", "|")
	assert.Error(t, err)
}

func TestFilterDigits(t *testing.T) {
	assert.Equal(t, "12345", FilterDigits("12a3-4 5"))
	assert.Equal(t, "", FilterDigits("ABC|"))
	assert.Equal(t, "2", FilterDigits("１2"))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("14:30")
	require.NoError(t, err)
	assert.Equal(t, half230, c)

	c, err = ParseClock("09:05:59")
	require.NoError(t, err)
	assert.Equal(t, civil.Time{Hour: 9, Minute: 5}, c)

	_, err = ParseClock("25:00")
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = ParseClock("")
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, june1, d)

	d, err = ParseDate("")
	require.NoError(t, err)
	assert.Equal(t, civil.Date{}, d)

	_, err = ParseDate("2024-02-30")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseDate("01/06/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
