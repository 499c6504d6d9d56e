// Package schedule maps frame indices to scene prompts. A schedule is a
// CSV of scenes with a name, a starting frame, and a prompt; each scene
// covers the frames from its start up to the next scene's start. The
// resolver validates that the scenes partition the full frame range
// before any work is dispatched.
package schedule
