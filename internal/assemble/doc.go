// Package assemble turns a dispatch run into an ordered output frame
// sequence and a render manifest. Frames whose stylization failed are
// handled by policy: substitute the original frame, or abort the
// assembly. The output directory is locked while writing so two runs
// cannot interleave frames.
package assemble
