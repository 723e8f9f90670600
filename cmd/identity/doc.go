// Package identity holds Circuito's canonical user model: students,
// ambassadors, partner staff, and community members, together with their
// impact-point balance and cached level.
//
// Balances are never mutated through this package directly; the collection
// and reward workflows own those transitions. identity provides lookups,
// registration, and the typed error contract shared by the stores.
package identity
