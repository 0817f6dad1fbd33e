// Package freqprox buffers the postings of indexed fields in memory and
// writes them out as the .frq and .prx files of a new segment.
//
// Every (thread, field) pair owns a PerField consumer over a term table.
// Stream 0 of a term holds doc codes: the doc delta shifted left once, with
// the low bit set when the term frequency is 1 and the frequency following
// otherwise. Stream 1 holds position deltas, shifted left once, with the
// low bit flagging a payload whose length and bytes follow. Fields that omit
// term frequencies keep only stream 0, as plain doc deltas. The code of the
// last document of a term stays in the handle until the next document or
// the flush.
//
// Flush merges the tables of all threads field by field. Per segment file:
//
//	.frq  per term: DocCode, Freq?, ... SkipData
//	.prx  per term, per doc, per position: PositionCode, PayloadLength?, Payload?
//
// The payload length is only written when it differs from the previous
// one of the same term.
package freqprox
