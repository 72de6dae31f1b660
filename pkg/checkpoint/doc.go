// Package checkpoint commits discovered records to the store.
//
// Each record is written on its own: an existing identity is updated in
// place, a new one is inserted, and an insert that loses a race to another
// writer falls back to an update. Other persistence errors get one re-try
// after a short delay; a record that fails twice is dropped with a warning so
// the rest of the batch still lands.
package checkpoint
