package model

import (
	"fmt"
	"sort"
	"strings"
)

// Constellation identifies a GNSS constellation.
type Constellation int

const (
	ConstellationUnknown Constellation = iota
	ConstellationGPS
	ConstellationSBAS
	ConstellationGLONASS
	ConstellationQZSS
	ConstellationBeiDou
	ConstellationGalileo
	ConstellationNavIC
)

var constellationNames = map[Constellation]string{
	ConstellationGPS:     "gps",
	ConstellationSBAS:    "sbas",
	ConstellationGLONASS: "glonass",
	ConstellationQZSS:    "qzss",
	ConstellationBeiDou:  "beidou",
	ConstellationGalileo: "galileo",
	ConstellationNavIC:   "navic",
}

func (c Constellation) String() string {
	if name, ok := constellationNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseConstellation maps a case-insensitive name onto a Constellation.
func ParseConstellation(name string) (Constellation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range constellationNames {
		if n == name {
			return c, nil
		}
	}
	return ConstellationUnknown, fmt.Errorf("unknown constellation %q", name)
}

// Constellations lists every known constellation in a stable order.
func Constellations() []Constellation {
	return []Constellation{
		ConstellationGPS,
		ConstellationSBAS,
		ConstellationGLONASS,
		ConstellationQZSS,
		ConstellationBeiDou,
		ConstellationGalileo,
		ConstellationNavIC,
	}
}

// ConstellationMask is a bitmask with one bit per Constellation.
type ConstellationMask uint32

// MaskOf returns the bit for c.
func MaskOf(c Constellation) ConstellationMask {
	if c <= ConstellationUnknown {
		return 0
	}
	return 1 << uint(c-1)
}

// AllConstellations enables every known constellation.
func AllConstellations() ConstellationMask {
	var m ConstellationMask
	for _, c := range Constellations() {
		m |= MaskOf(c)
	}
	return m
}

// Has reports whether c is enabled in m.
func (m ConstellationMask) Has(c Constellation) bool {
	return m&MaskOf(c) != 0
}

// Blacklist is a per-constellation bitmask of disabled SV ids. Bit n set in
// the value for a constellation disables SV id n+1 of that constellation.
type Blacklist map[Constellation]uint64

// Add marks svid of c as blacklisted.
func (b Blacklist) Add(c Constellation, svid int) {
	if svid < 1 || svid > 64 {
		return
	}
	b[c] |= 1 << uint(svid-1)
}

// Contains reports whether svid of c is blacklisted.
func (b Blacklist) Contains(c Constellation, svid int) bool {
	if svid < 1 || svid > 64 {
		return false
	}
	return b[c]&(1<<uint(svid-1)) != 0
}

// Equal compares two blacklists ignoring zero entries.
func (b Blacklist) Equal(other Blacklist) bool {
	for c, bits := range b {
		if other[c] != bits {
			return false
		}
	}
	for c, bits := range other {
		if b[c] != bits {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not alias b.
func (b Blacklist) Clone() Blacklist {
	out := make(Blacklist, len(b))
	for c, bits := range b {
		if bits != 0 {
			out[c] = bits
		}
	}
	return out
}

func (b Blacklist) String() string {
	keys := make([]int, 0, len(b))
	for c, bits := range b {
		if bits != 0 {
			keys = append(keys, int(c))
		}
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		c := Constellation(k)
		parts = append(parts, fmt.Sprintf("%s:%#x", c, b[c]))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// SvConfig is the acknowledged satellite configuration held by the engine.
type SvConfig struct {
	Blacklist         Blacklist
	Enabled           ConstellationMask
	SecondaryBandMask ConstellationMask
}

// DefaultSvConfig is the configuration restored by ResetSvConfig.
func DefaultSvConfig() SvConfig {
	return SvConfig{
		Blacklist:         Blacklist{},
		Enabled:           AllConstellations(),
		SecondaryBandMask: AllConstellations(),
	}
}
