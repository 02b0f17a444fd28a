// Package status reads the live state of a Denon receiver from its main
// zone XML status document.
//
// Reading never fails from the caller's point of view: GetStatus returns
// Default() for an unreachable receiver or an unreadable document, with
// Valid false and Connection "Disconnected". Fetch returns the same
// fallback together with the reason.
package status
