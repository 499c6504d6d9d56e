// Package dispatch fans frames out to the stylization endpoint. Each
// frame is fingerprinted from its content and generation parameters,
// then either served from the cache, computed under an exclusive claim,
// or waited out while another worker computes it. The cache claim is the
// only mutual exclusion: any number of workers or processes can dispatch
// the same frames and exactly one remote call happens per fingerprint.
package dispatch
