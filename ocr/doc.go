// Package ocr defines abstraction layers for plugging OCR engines (for
// example, Tesseract) into the job pipeline. The interfaces are intentionally
// small and transport-agnostic so engines can be backed by native libraries,
// local binaries, or remote APIs without leaking provider-specific concerns
// into callers. An absent engine is a normal condition, not an error: the
// pipeline reports it and proceeds without recognized text.
package ocr
