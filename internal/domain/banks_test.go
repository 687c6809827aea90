package domain

import "testing"

func TestResolveBank_FintechCodes(t *testing.T) {
	cases := map[string]string{
		"opay":       "999992",
		"OPay":       "999992",
		"palmpay":    "999991",
		"PalmPay":    "999991",
		"moniepoint": "50515",
		"kuda":       "50211",
	}
	for input, wantCode := range cases {
		bank, ok := ResolveBank(input)
		if !ok {
			t.Fatalf("expected %q to resolve", input)
		}
		if bank.Code != wantCode {
			t.Fatalf("resolve %q: got code %s, want %s", input, bank.Code, wantCode)
		}
	}
}

func TestResolveBank_MixedCaseAndSpaces(t *testing.T) {
	for _, input := range []string{"Monie Point", "MONIEPOINT MFB", "moniepoint", "50515"} {
		bank, ok := ResolveBank(input)
		if !ok {
			t.Fatalf("expected %q to resolve", input)
		}
		if bank.Code != "50515" {
			t.Fatalf("resolve %q: got code %s, want 50515", input, bank.Code)
		}
	}
}

func TestResolveBank_TraditionalAliases(t *testing.T) {
	cases := map[string]string{
		"GTBank":               "058",
		"gtb":                  "058",
		"Guaranty Trust Bank":  "058",
		"First Bank":           "011",
		"access bank":          "044",
		"Zenith Bank Plc":      "057",
		"united bank for africa": "033",
	}
	for input, wantCode := range cases {
		bank, ok := ResolveBank(input)
		if !ok {
			t.Fatalf("expected %q to resolve", input)
		}
		if bank.Code != wantCode {
			t.Fatalf("resolve %q: got code %s, want %s", input, bank.Code, wantCode)
		}
	}
}

func TestResolveBank_Unknown(t *testing.T) {
	for _, input := range []string{"", "   ", "bank of narnia"} {
		if _, ok := ResolveBank(input); ok {
			t.Fatalf("did not expect %q to resolve", input)
		}
	}
}
