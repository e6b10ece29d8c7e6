// README: Static city-pair distance table shared by pricing and routing.
package distance

import "strings"

// DefaultKm is returned for city pairs missing from the table.
const DefaultKm = 200.0

// Table is an immutable symmetric distance lookup.
type Table struct {
	pairs     map[string]float64
	defaultKm float64
}

// Pair is one table row in kilometres.
type Pair struct {
	From string
	To   string
	Km   float64
}

var uzbekistan = []Pair{
	{"Toshkent", "Samarqand", 280},
	{"Toshkent", "Buxoro", 440},
	{"Toshkent", "Andijon", 320},
	{"Toshkent", "Fargona", 300},
	{"Toshkent", "Namangan", 310},
	{"Toshkent", "Qashqadaryo", 380},
	{"Toshkent", "Surxondaryo", 420},
	{"Toshkent", "Sirdaryo", 120},
	{"Toshkent", "Jizzax", 180},
	{"Toshkent", "Navoiy", 340},
	{"Toshkent", "Xorazm", 480},
	{"Toshkent", "Qoraqalpogiston", 520},
	{"Samarqand", "Buxoro", 160},
	{"Samarqand", "Qashqadaryo", 180},
	{"Buxoro", "Navoiy", 100},
	{"Buxoro", "Xorazm", 200},
	{"Andijon", "Fargona", 40},
	{"Andijon", "Namangan", 60},
	{"Fargona", "Namangan", 70},
}

// NewTable builds a table from pairs. Each pair is stored in one direction only;
// Distance checks both.
func NewTable(pairs []Pair, defaultKm float64) *Table {
	t := &Table{pairs: make(map[string]float64, len(pairs)), defaultKm: defaultKm}
	for _, p := range pairs {
		t.pairs[pairKey(p.From, p.To)] = p.Km
	}
	return t
}

// Default returns the regional table with the 200 km fallback.
func Default() *Table {
	return NewTable(uzbekistan, DefaultKm)
}

// Distance returns the km between from and to. known is false when neither
// direction is in the table and the default was substituted.
func (t *Table) Distance(from, to string) (km float64, known bool) {
	if v, ok := t.pairs[pairKey(from, to)]; ok {
		return v, true
	}
	if v, ok := t.pairs[pairKey(to, from)]; ok {
		return v, true
	}
	return t.defaultKm, false
}

// Normalize canonicalises a city name for keys and comparisons.
func Normalize(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

func pairKey(from, to string) string {
	return Normalize(from) + "-" + Normalize(to)
}

// RouteName formats an origin/destination pair the way history and market data key routes.
func RouteName(from, to string) string {
	return strings.TrimSpace(from) + "-" + strings.TrimSpace(to)
}
