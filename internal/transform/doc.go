// Package transform implements the per-item operations of a batch:
// Convert, Upscale, Denoise and Stitch. Each satisfies pipeline.Transform
// and tool.Terminator.
package transform
