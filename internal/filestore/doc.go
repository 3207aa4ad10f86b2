// Package filestore resolves opaque upload handles to local file paths.
//
// Two backends exist: a local directory of uploaded files and an S3 bucket
// that downloads objects into the temp directory on demand. Both return a
// cleanup the caller runs when the render that requested the file finishes.
package filestore
