package options

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flowscan/pkg/errors"
)

// Contract is the decoded form of a compact OCC-style contract symbol,
// e.g. AAPL260116C00210000 (underlying, YYMMDD expiry, C/P, strike x1000).
type Contract struct {
	Underlying string
	Expiry     time.Time
	OptionType OptionType
	Strike     decimal.Decimal
}

var strikeDenominator = decimal.NewFromInt(1000)

// ParseSymbol decodes a contract symbol into its parts.
// The provider's "O:" prefix is tolerated and stripped.
func ParseSymbol(symbol string) (Contract, error) {
	s := strings.TrimPrefix(symbol, "O:")

	// Layout from the right: 8-digit strike, 1-char type, 6-digit date,
	// everything before that is the underlying ticker.
	if len(s) < 16 {
		return Contract{}, errors.Wrapf(errors.ErrDecode, "symbol %q too short", symbol)
	}

	strikePart := s[len(s)-8:]
	typePart := s[len(s)-9]
	datePart := s[len(s)-15 : len(s)-9]
	underlying := s[:len(s)-15]

	if underlying == "" {
		return Contract{}, errors.Wrapf(errors.ErrDecode, "symbol %q has no underlying", symbol)
	}

	var typ OptionType
	switch typePart {
	case 'C':
		typ = Call
	case 'P':
		typ = Put
	default:
		return Contract{}, errors.Wrapf(errors.ErrDecode, "symbol %q has bad type %q", symbol, string(typePart))
	}

	yy, err := strconv.Atoi(datePart[0:2])
	if err != nil {
		return Contract{}, errors.Wrapf(errors.ErrDecode, "symbol %q has bad year", symbol)
	}
	mm, err := strconv.Atoi(datePart[2:4])
	if err != nil || mm < 1 || mm > 12 {
		return Contract{}, errors.Wrapf(errors.ErrDecode, "symbol %q has bad month", symbol)
	}
	dd, err := strconv.Atoi(datePart[4:6])
	if err != nil || dd < 1 || dd > 31 {
		return Contract{}, errors.Wrapf(errors.ErrDecode, "symbol %q has bad day", symbol)
	}
	expiry := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)

	strikeThousandths, err := strconv.ParseInt(strikePart, 10, 64)
	if err != nil {
		return Contract{}, errors.Wrapf(errors.ErrDecode, "symbol %q has bad strike", symbol)
	}
	strike := decimal.NewFromInt(strikeThousandths).Div(strikeDenominator)

	return Contract{
		Underlying: underlying,
		Expiry:     expiry,
		OptionType: typ,
		Strike:     strike,
	}, nil
}

// FormatSymbol is the inverse of ParseSymbol (without the "O:" prefix)
func FormatSymbol(underlying string, expiry time.Time, typ OptionType, strike decimal.Decimal) string {
	letter := "C"
	if typ == Put {
		letter = "P"
	}
	thousandths := strike.Mul(strikeDenominator).IntPart()
	return fmt.Sprintf("%s%s%s%08d", underlying, expiry.Format("060102"), letter, thousandths)
}
