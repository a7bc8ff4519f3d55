//go:build exrdebug

package block

const verifyLosslessRoundTrip = true
