// Package extractor turns rendered list snapshots into raw board and pin
// records. It holds every site-specific markup heuristic and does no I/O.
package extractor
