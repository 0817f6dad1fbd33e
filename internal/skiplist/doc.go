// Package skiplist writes and reads the multi-level skip data stored after
// each term's postings in the frequency file.
//
// Level 0 has one entry every interval documents, level l one entry every
// interval^(l+1) documents. An entry records the last document before the
// checkpoint, the frequency and position file pointers of the next posting
// and, for fields with payloads, the payload length in effect. Entries above
// level 0 also point to the matching entry one level down.
//
// Serialized layout, highest level first:
//
//	for level = n-1 .. 1: VLong length, level bytes
//	level 0 bytes
package skiplist
