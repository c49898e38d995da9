// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing rupee amounts from strings
// and converting between paisa and rupee representations.
package core

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in Nepali rupees held as integer paisa (1/100 rupee).
type Money struct {
	Paisa int64
}

// Rupees builds a Money from whole rupees.
func Rupees(r int64) Money {
	return Money{Paisa: r * 100}
}

func (m Money) Add(o Money) Money {
	return Money{Paisa: m.Paisa + o.Paisa}
}

func (m Money) Sub(o Money) Money {
	return Money{Paisa: m.Paisa - o.Paisa}
}

func (m Money) IsZero() bool {
	return m.Paisa == 0
}

func (m Money) IsPositive() bool {
	return m.Paisa > 0
}

// ParseAmount converts a decimal rupee string to paisa with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// thousands separators are not supported. Zero is a valid amount (a fee type
// can be configured at zero, and most bill lines carry a zero discount).
// Negative values and malformed input return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("2600")    -> 260000, nil
//	ParseAmount("12,34")   -> 1234, nil
//	ParseAmount("12.345")  -> 1235, nil (rounds up)
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	// ASCII only: the fraction below is read byte by byte.
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Money{}, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return Money{}, ErrInvalidAmount
	}
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}
	return Money{Paisa: iv*100 + frac}, nil
}

// RupeesFloat returns the value as float64 for JSON and chart output.
// Use Paisa for arithmetic.
func (m Money) RupeesFloat() float64 {
	return float64(m.Paisa) / 100.0
}

var npr = message.NewPrinter(language.English)

// Format renders the amount as "NPR 2,600.00".
func (m Money) Format() string {
	p := m.Paisa
	sign := ""
	if p < 0 {
		sign = "-"
		p = -p
	}
	return sign + "NPR " + npr.Sprintf("%d", p/100) + "." + fmt.Sprintf("%02d", p%100)
}

func (m Money) String() string {
	return m.Format()
}
