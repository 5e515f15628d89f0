// Package syncer periodically refreshes account and position snapshots
// from the broker. The latest snapshot is cached for cheap reads by the
// health endpoint and other consumers.
package syncer
