package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestValidateSplit(t *testing.T) {
	require.NoError(t, ValidateSplit(dec("150.00"), dec("100.00"), dec("50.00")))
	require.NoError(t, ValidateSplit(decimal.Zero, decimal.Zero, decimal.Zero))

	assert.Error(t, ValidateSplit(dec("150.00"), dec("100.00"), dec("60.00")))
	assert.Error(t, ValidateSplit(dec("150.00"), dec("-10.00"), dec("160.00")))
	assert.Error(t, ValidateSplit(dec("150.00"), dec("160.00"), dec("-10.00")))
}

func TestSplitForMatchingAmount(t *testing.T) {
	prof, inst := SplitFor(dec("150.00"), dec("100.00"), dec("50.00"))
	assert.True(t, prof.Equal(dec("100.00")))
	assert.True(t, inst.Equal(dec("50.00")))
}

func TestSplitForScalesProportionally(t *testing.T) {
	// Half price month keeps the two-thirds professor ratio.
	prof, inst := SplitFor(dec("75.00"), dec("100.00"), dec("50.00"))
	assert.True(t, prof.Equal(dec("50.00")), "got %s", prof)
	assert.True(t, inst.Equal(dec("25.00")), "got %s", inst)
	assert.True(t, prof.Add(inst).Equal(dec("75.00")))
}

func TestSplitForRoundingRemainderGoesToInstitution(t *testing.T) {
	prof, inst := SplitFor(dec("100.00"), dec("33.33"), dec("66.67"))
	assert.True(t, prof.Add(inst).Equal(dec("100.00")))
}

func TestSplitForZeroExpected(t *testing.T) {
	prof, inst := SplitFor(dec("80.00"), decimal.Zero, decimal.Zero)
	assert.True(t, prof.IsZero())
	assert.True(t, inst.Equal(dec("80.00")))
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 150,00", FormatBRL(dec("150")))
	assert.Equal(t, "R$ 1.234,50", FormatBRL(dec("1234.5")))
	assert.Equal(t, "R$ 0,00", FormatBRL(decimal.Zero))
	assert.Equal(t, "-R$ 99,90", FormatBRL(dec("-99.9")))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511988887777", NormalizePhone("(11) 98888-7777", "55"))
	assert.Equal(t, "5511988887777", NormalizePhone("5511988887777", "55"))
	assert.Equal(t, "551133334444", NormalizePhone("11 3333-4444", "55"))
	assert.Equal(t, "", NormalizePhone("abc", "55"))
}
