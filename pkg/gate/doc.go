// Package gate decides whether an uploaded receipt screenshot has the
// expected single-transaction layout before it is handed to OCR.
//
// A Pipeline runs one profile: decode, geometry gate, and depending on the
// strategy either nothing more, a structural comparison of a normalized
// region against the reference capture, or a template search for the
// reference inside the upload. Every run ends in exactly one Verdict.
package gate
