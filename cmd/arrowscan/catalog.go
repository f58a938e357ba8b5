package main

import "github.com/scrapbird/arrowfdw/engine/types"

// tagCatalog is a minimal typebind.Catalog for standalone use: outside a
// host database there is no real pg_type/composite-type registry to
// consult, so pg_type overrides never match (scalar columns keep the
// binder's unresolved HostTypeID 0) and every Struct binds to a synthetic
// composite id derived from its attribute count. This lets the demo CLI run against a
// bare .arrow file without a database connection; a real embedding
// supplies its own catalog backed by its own type system.
type tagCatalog struct{}

func (tagCatalog) LookupTypeByName(qualifiedName string, opts types.ArrowTypeOptions) (types.HostTypeID, bool) {
	return 0, false
}

func (tagCatalog) LookupComposite(attrTypes []types.HostTypeID) (types.HostTypeID, bool) {
	return types.HostTypeID(len(attrTypes) + 1000), true
}
