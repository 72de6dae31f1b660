// Package storage manages the media files written by the download stage.
//
// Files are named after the pin id when the pin URL carries one, otherwise
// after a BLAKE2b hash of the media URL. Saves go through a temporary file in
// the same directory followed by a rename, so an interrupted download never
// leaves a file that looks complete. IsDownloaded is what makes re-runs skip
// work: a file that exists is never fetched again.
package storage
