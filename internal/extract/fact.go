// Package extract pulls named facts out of semi-structured upstream text.
//
// Each extractor runs a small scanner driven by an explicit, ordered rule list.
// The first rule that matches a fact wins; later matches for the same fact are
// ignored. A fact that no rule matched is absent, which is not an error here:
// callers decide how much an absent fact matters.
package extract

// Fact names shared by the extractors.
const (
	FactVersion = "version"
	FactURL     = "url"
	FactHash    = "hash"
	FactTag     = "tag"
)

// Fact is one value extracted from upstream text.
type Fact struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	// Source names the rule that produced the value.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// Raw is the matched text before normalization, when it differs from Value.
	Raw     string `json:"raw,omitempty" yaml:"raw,omitempty"`
	Present bool   `json:"present" yaml:"present"`
}

// Record is the set of facts extracted from one blob.
// The zero value is an empty record ready for use.
type Record struct {
	facts map[string]Fact
	order []string
}

// Set records a fact unless one with the same name is already present.
// Empty values are never recorded. It reports whether the fact was stored.
func (r *Record) Set(f Fact) bool {
	if f.Name == "" || f.Value == "" {
		return false
	}
	if _, ok := r.facts[f.Name]; ok {
		return false
	}
	if r.facts == nil {
		r.facts = make(map[string]Fact)
	}
	f.Present = true
	if f.Raw == f.Value {
		f.Raw = ""
	}
	r.facts[f.Name] = f
	r.order = append(r.order, f.Name)
	return true
}

// Get returns the named fact, or an absent fact carrying only the name.
func (r Record) Get(name string) Fact {
	if f, ok := r.facts[name]; ok {
		return f
	}
	return Fact{Name: name}
}

// Has reports whether the named fact is present.
func (r Record) Has(name string) bool {
	_, ok := r.facts[name]
	return ok
}

// Facts returns the present facts in the order they were found.
func (r Record) Facts() []Fact {
	out := make([]Fact, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.facts[name])
	}
	return out
}

// Len returns the number of present facts.
func (r Record) Len() int { return len(r.order) }
