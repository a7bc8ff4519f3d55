//go:build !exrdebug

package block

// Lossless codec round-trip verification is a debug net, never a release
// check. Build with -tags exrdebug to enable it.
const verifyLosslessRoundTrip = false
