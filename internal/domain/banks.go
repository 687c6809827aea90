/**
 * @description
 * Static directory of Nigerian banks and fintechs with the transfer codes the
 * payments provider expects. Name resolution is forgiving: case, spacing and the
 * usual suffixes ("bank", "plc", "mfb") are ignored, and common aliases map to
 * the same institution.
 *
 * @notes
 * - Fintech codes follow the provider's current directory: OPay 999992,
 *   PalmPay 999991, Moniepoint 50515.
 */

package domain

import "strings"

// Bank is one entry of the static bank directory.
type Bank struct {
	Name string
	Code string
	// Aliases are normalized alternative spellings users type in chat.
	Aliases []string
}

var nigerianBanks = []Bank{
	// Fintechs first; they dominate chat-transfer traffic.
	{Name: "OPay", Code: "999992", Aliases: []string{"opay", "opaydigitalservices"}},
	{Name: "PalmPay", Code: "999991", Aliases: []string{"palmpay"}},
	{Name: "Moniepoint MFB", Code: "50515", Aliases: []string{"moniepoint", "monipoint", "moneypoint"}},
	{Name: "Kuda MFB", Code: "50211", Aliases: []string{"kuda", "kudamicrofinance"}},
	{Name: "Carbon", Code: "565", Aliases: []string{"carbon", "paylater"}},
	{Name: "Rubies MFB", Code: "125", Aliases: []string{"rubies"}},
	{Name: "Sparkle MFB", Code: "51310", Aliases: []string{"sparkle"}},
	{Name: "VFD MFB", Code: "566", Aliases: []string{"vfd", "vbank"}},
	{Name: "9mobile 9Payment Service Bank", Code: "120001", Aliases: []string{"9psb", "9paymentservicebank"}},

	// Traditional commercial banks, CBN codes.
	{Name: "Access Bank", Code: "044", Aliases: []string{"access", "accessdiamond", "diamond"}},
	{Name: "GTBank", Code: "058", Aliases: []string{"gtbank", "gtb", "gt", "guarantytrust", "guarantytrustbank"}},
	{Name: "Zenith Bank", Code: "057", Aliases: []string{"zenith"}},
	{Name: "UBA", Code: "033", Aliases: []string{"uba", "unitedbankforafrica"}},
	{Name: "First Bank", Code: "011", Aliases: []string{"firstbank", "first", "fbn"}},
	{Name: "Fidelity Bank", Code: "070", Aliases: []string{"fidelity"}},
	{Name: "FCMB", Code: "214", Aliases: []string{"fcmb", "firstcitymonument", "firstcitymonumentbank"}},
	{Name: "Union Bank", Code: "032", Aliases: []string{"union", "unionbankofnigeria"}},
	{Name: "Sterling Bank", Code: "232", Aliases: []string{"sterling"}},
	{Name: "Stanbic IBTC", Code: "221", Aliases: []string{"stanbic", "stanbicibtc", "ibtc"}},
	{Name: "Wema Bank", Code: "035", Aliases: []string{"wema", "alat", "alatbywema"}},
	{Name: "Ecobank", Code: "050", Aliases: []string{"ecobank", "ecobanknigeria"}},
	{Name: "Polaris Bank", Code: "076", Aliases: []string{"polaris", "skye", "skyebank"}},
	{Name: "Providus Bank", Code: "101", Aliases: []string{"providus"}},
	{Name: "Unity Bank", Code: "215", Aliases: []string{"unity"}},
	{Name: "Keystone Bank", Code: "082", Aliases: []string{"keystone"}},
	{Name: "Heritage Bank", Code: "030", Aliases: []string{"heritage"}},
	{Name: "Citibank", Code: "023", Aliases: []string{"citibank", "citi"}},
	{Name: "Standard Chartered", Code: "068", Aliases: []string{"standardchartered"}},
	{Name: "Jaiz Bank", Code: "301", Aliases: []string{"jaiz"}},
	{Name: "Titan Trust Bank", Code: "102", Aliases: []string{"titan", "titantrust"}},
	{Name: "Globus Bank", Code: "00103", Aliases: []string{"globus"}},
	{Name: "SunTrust Bank", Code: "100", Aliases: []string{"suntrust"}},
	{Name: "Lotus Bank", Code: "303", Aliases: []string{"lotus"}},
	{Name: "Taj Bank", Code: "302", Aliases: []string{"taj", "tajbank"}},
}

var bankIndex = buildBankIndex()

func buildBankIndex() map[string]*Bank {
	idx := make(map[string]*Bank, len(nigerianBanks)*3)
	for i := range nigerianBanks {
		b := &nigerianBanks[i]
		idx[b.Code] = b
		idx[normalizeBankName(b.Name)] = b
		for _, alias := range b.Aliases {
			idx[alias] = b
		}
	}
	return idx
}

// bank-name suffixes that carry no identity.
var bankSuffixes = []string{"microfinancebank", "microfinance", "bank", "plc", "limited", "ltd", "mfb", "nigeria", "digitalservices"}

func normalizeBankName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	for changed := true; changed; {
		changed = false
		for _, suf := range bankSuffixes {
			if len(s) > len(suf) && strings.HasSuffix(s, suf) {
				s = strings.TrimSuffix(s, suf)
				changed = true
			}
		}
	}
	return s
}

// ResolveBank maps a user-supplied bank name or code to a directory entry.
// "Monie Point", "MONIEPOINT MFB" and "50515" all resolve to the same bank.
func ResolveBank(nameOrCode string) (*Bank, bool) {
	key := strings.TrimSpace(nameOrCode)
	if key == "" {
		return nil, false
	}
	if b, ok := bankIndex[key]; ok {
		return b, true
	}
	if b, ok := bankIndex[normalizeBankName(key)]; ok {
		return b, true
	}
	return nil, false
}

// BankDirectory returns the full static directory.
func BankDirectory() []Bank {
	return nigerianBanks
}
