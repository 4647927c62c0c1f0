// Package base holds the plumbing shared by every Source implementation:
// embeddable Handle and Resource data, derived Source registration, JSON
// field access, content type detection and scoped temporary files.
//
// Concrete Sources live in sibling packages and embed these types; methods
// that depend on a variant's own presentation (String, SortKey) are
// provided as functions over the driven.Handle interface.
package base
