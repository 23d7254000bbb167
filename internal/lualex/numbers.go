// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package lualex

import (
	"errors"
	"strconv"
	"strings"
)

// ParseNumber converts the given string to a 64-bit floating-point number
// according to the lexical rules of the classic Lua dialect:
// decimal digits with an optional radix point and an optional decimal exponent.
// Surrounding whitespace is permitted,
// and any error returned will be of type [*strconv.NumError].
func ParseNumber(s string) (float64, error) {
	trimmed := trimSpace(s)
	_, withoutSign := cutSign(trimmed)
	if strings.EqualFold(withoutSign, "Inf") ||
		strings.EqualFold(withoutSign, "Infinity") ||
		strings.EqualFold(withoutSign, "NaN") ||
		strings.ContainsAny(withoutSign, "_xX") {
		return 0, &strconv.NumError{
			Func: "ParseNumber",
			Num:  s,
			Err:  strconv.ErrSyntax,
		}
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if errors.Is(err, strconv.ErrRange) {
		err = nil
	} else if err != nil {
		err.(*strconv.NumError).Func = "ParseNumber"
		err.(*strconv.NumError).Num = s
	}
	return f, err
}

func cutSign(s string) (neg bool, rest string) {
	switch {
	case len(s) == 0:
		return false, s
	case s[0] == '+':
		return false, s[1:]
	case s[0] == '-':
		return true, s[1:]
	default:
		return false, s
	}
}

func trimSpace(s string) string {
	for len(s) > 0 && isSpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isSpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}
