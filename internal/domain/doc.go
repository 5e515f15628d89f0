// Package domain defines the venue-agnostic contract types exchanged
// between the broker bridge and its callers: orders, positions, account
// snapshots, and quotes. Values are immutable snapshots converted from
// venue-native shapes; callers never hold a live reference into venue
// state.
package domain
