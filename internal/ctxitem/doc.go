// Package ctxitem defines the data model shared by every stage of the
// context pipeline: extracted context items, the typed edges between them,
// and the chats that own them.
//
// Items are created once per extraction run. After creation only two
// mutations are allowed: a one-time summary (see Item.SetSummary) and
// upward importance adjustments (see Item.RaiseImportance).
package ctxitem
