// Package manifest persists commit points: the list of segments that make
// up an index at one point in time.
//
// # Commit Files
//
// Every commit writes a new file segments_N, N being the base 36 commit
// generation, through the store's footer-checked outputs:
//
//	Int32 magic, Int32 format, Int64 version, VInt name counter,
//	VInt segment count, segment*
//
//	segment: String name, VInt docCount, byte flags, VLong delGen,
//	         VInt delCount, VLong normGen, VLong numTerms,
//	         VLong sizeBytes, VInt fileCount, String file*
//
// # Atomic Protocol
//
// Commit follows a two-phase protocol:
//
//  1. Write segments_N.
//  2. Atomically replace CURRENT with the name segments_N.
//
// Load reads CURRENT to find the active commit, then loads that file. A
// segments_N without a CURRENT pointing at it is an aborted commit.
//
// # Thread Safety
//
// Store methods are protected by a mutex. SegmentInfos is not safe for
// concurrent mutation; callers clone before sharing.
package manifest
