package utils

import "golang.org/x/net/publicsuffix"

// GetApexDomain returns the registrable domain (eTLD+1) of name, used to group
// blocked queries in logs. Names that have no registrable part are returned in
// canonical form unchanged.
func GetApexDomain(name string) string {
	name = CanonicalDNSName(name)
	apexDomain, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		apexDomain = name
	}
	return apexDomain
}
