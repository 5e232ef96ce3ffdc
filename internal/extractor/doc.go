// Package extractor talks to the external feature-extraction capability.
//
// Extraction turns the captured views of one part into a feature row. Two
// transports exist: an HTTP endpoint receiving a JSON request, and a local
// binary invoked once per part that prints the JSON response on stdout. Both
// report failures tagged with services.ErrExternalTool.
package extractor
