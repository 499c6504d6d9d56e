// Package review tracks frames an operator wants recomputed. Marks live
// in a JSON file so they survive between sessions; frames can also be
// auto-flagged when their pixel delta from both neighbors spikes, which
// usually means one frame in a scene came back visually inconsistent.
// Invalidation removes the marked frames' cache entries; the next run
// recomputes exactly those frames.
package review
