// Package docwriter buffers documents in memory and flushes them as new
// segments.
//
// Concurrent AddDocument calls each bind a thread state, which owns its
// pools and per-field consumers. Doc IDs are handed out under the writer
// lock when the state is bound, so the documents a state sees are in
// increasing order. Flush waits until every state is idle, merges the
// states field by field and writes the segment files:
//
//	_N.fnm  field infos
//	_N.frq  doc deltas and frequencies, with skip data
//	_N.prx  positions and payloads (only if a field stores positions)
//	_N.tis  term dictionary, _N.tii its index, _N.blm optional term filter
//	_N.nrm  norms (only if a field has norms)
//
// optionally packed into _N.cfs.
package docwriter
