// Command vidstyle is the CLI for the frame-by-frame video stylization
// pipeline: extract frames from a video, detect scenes and fill their
// prompts, stylize every frame through a remote img2img endpoint with a
// durable content-addressed cache, and render the result back to video.
package main
