// Package discovery finds receivers on the local network and keeps the
// device registry current.
//
// Two strategies produce sightings:
//
//   - Passive: browse mDNS advertisements for a fixed window
//     (StartAdvertisementDiscovery).
//   - Active: request every host of a subnet with GET / (ScanSubnet).
//
// Every sighting goes through RecordSighting, which merges it into the
// registry under one lock so an address is never recorded twice. A new
// address is identified once, best effort, by fetching its front page and
// running the configured Identifiers over it.
//
// ExpireStale marks devices not seen recently as inactive. It is not
// self-scheduling; the daemon runs it on a ticker.
package discovery
