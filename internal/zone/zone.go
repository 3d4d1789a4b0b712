// Package zone classifies a flight to its terminal zone. It is a pure
// function package: no I/O, no shared state, safe to call from any
// goroutine.
package zone

import "strings"

// Canonical zone labels.
const (
	PierA      = "Pier A"
	TB         = "TB"
	Gates      = "Gates"
	T1         = "T1"
	Unassigned = "Unassigned"
)

// Region codes used to resolve the swing-door gates.
const (
	RegionDOM  = "DOM"
	RegionUS   = "US"
	RegionINTL = "INTL"
	RegionNone = ""
)

// Flight types.
const (
	TypeARR = "ARR"
	TypeDEP = "DEP"
)

var pierASet = map[string]bool{
	"B2A": true, "B2C": true, "B3": true, "B4": true, "B5": true, "B20": true, "B22": true,
}

func tbSet() map[string]bool {
	set := make(map[string]bool, 10)
	for n := 6; n <= 15; n++ {
		set[normalizedGate("A", n)] = true
	}
	return set
}

func normalizedGate(prefix string, n int) string {
	return prefix + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var tbGateSet = tbSet()

// NormalizeGate uppercases, strips a leading "GATE ", and removes all
// whitespace and hyphens.
func NormalizeGate(raw string) string {
	g := strings.ToUpper(strings.TrimSpace(raw))
	g = strings.TrimPrefix(g, "GATE ")
	g = strings.ReplaceAll(g, " ", "")
	g = strings.ReplaceAll(g, "-", "")
	return g
}

// normalizeToken uppercases and strips whitespace, used when comparing an
// override's value against the SWINGDOOR/UNASSIGNED sentinels.
func normalizeToken(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// ResolveSwingDoor decides the zone for a swing-door gate given the
// flight's type and region.
func ResolveSwingDoor(flightType, region string) string {
	switch region {
	case RegionUS:
		return TB
	case RegionINTL:
		if flightType == TypeARR {
			return TB
		}
		return PierA
	case RegionDOM:
		return PierA
	default:
		return TB
	}
}

// RegionLookup classifies an IATA airport code into DOM/US/INTL/"" per
// the membership rules: US-set membership wins, then a leading "Y"
// (Canadian domestic codes) means DOM, otherwise INTL. An empty code
// yields "".
func RegionLookup(iata string, usAirports map[string]bool) string {
	if iata == "" {
		return RegionNone
	}
	code := strings.ToUpper(iata)
	if usAirports[code] {
		return RegionUS
	}
	if strings.HasPrefix(code, "Y") {
		return RegionDOM
	}
	return RegionINTL
}

// gateNumber extracts the numeric portion of a normalized gate string,
// returning ok=false if the gate has no digits.
func gateNumber(normalizedGate string) (n int, ok bool) {
	start := -1
	for i, r := range normalizedGate {
		if r >= '0' && r <= '9' {
			if start == -1 {
				start = i
			}
		} else if start != -1 {
			break
		}
	}
	if start == -1 {
		return 0, false
	}
	n = 0
	for i := start; i < len(normalizedGate); i++ {
		r := normalizedGate[i]
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// Classify maps a flight's raw attributes to a canonical zone, applying
// the precedence rules in order: override, no-gate, named gate sets,
// numeric gate ranges, terminal fallback.
func Classify(flightType, rawGate, rawTerminal, region string, overrides map[string]string) string {
	gate := NormalizeGate(rawGate)

	if gate != "" {
		if override, ok := overrides[gate]; ok {
			switch normalizeToken(override) {
			case "SWINGDOOR":
				return ResolveSwingDoor(flightType, region)
			case "UNASSIGNED":
				return Unassigned
			default:
				return override
			}
		}
	}

	terminal := strings.ToUpper(strings.TrimSpace(rawTerminal))
	isTerminal1 := terminal == "1" || terminal == "T1"

	if gate == "" {
		if isTerminal1 {
			return T1
		}
		return Unassigned
	}

	if pierASet[gate] {
		return PierA
	}
	if tbGateSet[gate] {
		return TB
	}

	if n, ok := gateNumber(gate); ok {
		switch {
		case n >= 23 && n <= 41:
			return Gates
		case n >= 15 && n <= 19:
			return ResolveSwingDoor(flightType, region)
		}
	}

	if isTerminal1 {
		return T1
	}
	return Unassigned
}
