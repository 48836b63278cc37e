package loader

// Outcome is the result of resolving a coarse waste type.
type Outcome int

const (
	// Mapped types split into one or more fine-grained materials.
	Mapped Outcome = iota
	// Unmapped types are known to the source but carry no tradable material.
	Unmapped
	// Unknown types are not declared in the table at all.
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Mapped:
		return "mapped"
	case Unmapped:
		return "unmapped"
	default:
		return "unknown"
	}
}

// MaterialMap declares how coarse source categories split into fine materials.
type MaterialMap struct {
	order   []string
	entries map[string][]string
}

// DefaultMaterialMap is the coarse->fine table used for the historical source.
func DefaultMaterialMap() MaterialMap {
	return NewMaterialMap(
		Entry{Coarse: "Plastic", Materials: []string{"PET", "HDPE", "PP"}},
		Entry{Coarse: "E-Waste", Materials: []string{"Aluminum", "Steel"}},
		Entry{Coarse: "Paper", Materials: []string{"Cardboard", "Paper"}},
		Entry{Coarse: "Organic"},
		Entry{Coarse: "Construction"},
		Entry{Coarse: "Hazardous"},
	)
}

// Entry is one row of a MaterialMap. An empty Materials list declares the type unmapped.
type Entry struct {
	Coarse    string
	Materials []string
}

func NewMaterialMap(entries ...Entry) MaterialMap {
	m := MaterialMap{entries: make(map[string][]string, len(entries))}
	for _, e := range entries {
		if _, dup := m.entries[e.Coarse]; !dup {
			m.order = append(m.order, e.Coarse)
		}
		m.entries[e.Coarse] = append([]string(nil), e.Materials...)
	}
	return m
}

// Resolve returns the fine materials for a coarse type and how it was resolved.
func (m MaterialMap) Resolve(coarse string) ([]string, Outcome) {
	mats, ok := m.entries[coarse]
	if !ok {
		return nil, Unknown
	}
	if len(mats) == 0 {
		return nil, Unmapped
	}
	return mats, Mapped
}

// Materials lists every fine material in declaration order, without duplicates.
func (m MaterialMap) Materials() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range m.order {
		for _, mat := range m.entries[c] {
			if _, ok := seen[mat]; ok {
				continue
			}
			seen[mat] = struct{}{}
			out = append(out, mat)
		}
	}
	return out
}
