package service_test

import (
	"testing"

	"github.com/masswhatsapp/campaign-engine/internal/service"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name        string
		phone       string
		countryCode string
		want        string
	}{
		{"already international", "+254712345678", "", "+254712345678"},
		{"strips formatting", "+254 712-345 678", "", "+254712345678"},
		{"us number passes through", "14155550100", "254", "+14155550100"},
		{"long number without code passes through", "4478123456789", "", "+4478123456789"},
		{"local number gets country code", "712345678", "254", "+254712345678"},
		{"number already carrying code is not doubled", "254712345678", "254", "+254712345678"},
		{"empty input", "", "254", ""},
		{"no digits", "---", "254", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := service.NormalizePhone(tc.phone, tc.countryCode)
			if got != tc.want {
				t.Errorf("NormalizePhone(%q, %q) = %q, want %q",
					tc.phone, tc.countryCode, got, tc.want)
			}
		})
	}
}
