package docservice

// CollectionResolver computes the effective collection name for a
// request. Precedence: explicit path-level parameter, then the body
// "collection" field, then the per-dialect default. metadata.collection
// is an ordinary metadata attribute and never participates in routing.
type CollectionResolver struct {
	StrictDefault     string
	PermissiveDefault string
}

// Resolve returns the effective collection name. Resolution always
// succeeds by falling back to the dialect default.
func (r CollectionResolver) Resolve(p Policy, pathCollection, bodyCollection string) string {
	if pathCollection != "" {
		return pathCollection
	}
	if bodyCollection != "" {
		return bodyCollection
	}
	if p == Strict {
		return r.StrictDefault
	}
	return r.PermissiveDefault
}
