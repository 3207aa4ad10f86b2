// Package media resolves scene source references into local files.
//
// A source that parses as an absolute http(s) URL is downloaded into the temp
// directory with bounded size and time; anything else is treated as an opaque
// handle into the upload file store. The returned Resolved owns the scratch
// file for the duration of one render invocation.
package media
