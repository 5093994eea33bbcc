package models

import "sort"

// hashTypeCatalog is the set of hash algorithms the coordinator accepts,
// keyed by hashcat mode number. The catalog is compiled in rather than
// stored; it only changes with a release.
var hashTypeCatalog = map[int]HashType{
	0:     {ID: 0, Name: "MD5", IsEnabled: true},
	100:   {ID: 100, Name: "SHA1", IsEnabled: true},
	400:   {ID: 400, Name: "phpass", IsEnabled: true, Slow: true},
	500:   {ID: 500, Name: "md5crypt", IsEnabled: true, Slow: true},
	900:   {ID: 900, Name: "MD4", IsEnabled: true},
	1000:  {ID: 1000, Name: "NTLM", IsEnabled: true},
	1100:  {ID: 1100, Name: "Domain Cached Credentials", IsEnabled: true},
	1400:  {ID: 1400, Name: "SHA2-256", IsEnabled: true},
	1700:  {ID: 1700, Name: "SHA2-512", IsEnabled: true},
	1800:  {ID: 1800, Name: "sha512crypt", IsEnabled: true, Slow: true},
	3000:  {ID: 3000, Name: "LM", IsEnabled: true},
	3200:  {ID: 3200, Name: "bcrypt", IsEnabled: true, Slow: true},
	5500:  {ID: 5500, Name: "NetNTLMv1", IsEnabled: true},
	5600:  {ID: 5600, Name: "NetNTLMv2", IsEnabled: true},
	7500:  {ID: 7500, Name: "Kerberos 5 AS-REQ Pre-Auth", IsEnabled: true},
	8900:  {ID: 8900, Name: "scrypt", IsEnabled: true, Slow: true},
	10000: {ID: 10000, Name: "Django PBKDF2-SHA256", IsEnabled: true, Slow: true},
	13100: {ID: 13100, Name: "Kerberos 5 TGS-REP", IsEnabled: true},
	16800: {ID: 16800, Name: "WPA-PMKID-PBKDF2", IsEnabled: true, Slow: true},
	22000: {ID: 22000, Name: "WPA-PBKDF2-PMKID+EAPOL", IsEnabled: true, Slow: true},
}

// HashTypeByID looks up a hash type by mode number
func HashTypeByID(id int) (HashType, bool) {
	ht, ok := hashTypeCatalog[id]
	return ht, ok
}

// ListHashTypes returns the catalog entries, optionally filtered to
// enabled algorithms, in ascending mode order.
func ListHashTypes(enabledOnly bool) []HashType {
	out := make([]HashType, 0, len(hashTypeCatalog))
	for _, ht := range hashTypeCatalog {
		if enabledOnly && !ht.IsEnabled {
			continue
		}
		out = append(out, ht)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
