// Package search answers hybrid queries over stored context items.
//
// A query runs through an ordered list of paths. The semantic path embeds
// the query and asks the store for nearest neighbours above a similarity
// floor; when embedding or vector search fails, or finds nothing, the
// keyword path takes over and ranks items by the fraction of query keywords
// they contain. Keyword path failures are persistence failures and are
// returned to the caller; semantic path failures never are.
//
// The Engine also walks the relationship graph: FindRelated ranks an item's
// neighbours by edge type, and EvolutionChain follows EVOLVES_TO edges in
// both directions.
package search
