// Package probe inspects inputs cheaply, without decoding pixel data:
// raster headers via image.DecodeConfig, PDF page counts via pdfcpu.
package probe
