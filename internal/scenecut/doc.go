// Package scenecut finds scene transitions in an extracted frame
// sequence. The default detector compares hue histograms of consecutive
// frames; any detector producing a sorted list of cut frame indices can
// stand in for it. Detected cuts become the starting frames of a scene
// schedule.
package scenecut
