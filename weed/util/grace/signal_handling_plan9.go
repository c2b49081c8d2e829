//go:build plan9

package grace

func OnInterrupt(fn func()) {
}
