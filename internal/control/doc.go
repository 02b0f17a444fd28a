// Package control provides receiver operations that need more than one
// catalog command or a live status read: a real mute toggle, volume in dB
// and input selection by everyday names.
package control
