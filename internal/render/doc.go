// Package render composes ordered scenes into a single output video.
//
// The pipeline resolves each scene's source to a local file, materializes it
// into a time-bounded, resolution-normalized clip, folds the clip list
// left-to-right applying each scene's transition onto the accumulated result,
// and hands the final timeline to the Codec for encoding. Progress
// checkpoints stream over a channel; the caller decides how to persist them.
//
// Transition math lives in transition.go and is pure; the compositor never
// fails. All failures surface wrapped in ErrComposition, and every resolved
// resource is released on every exit path.
package render
