// Package terminfo implements the segment term dictionary.
//
// The dictionary is two files. The .tis file holds every term of the
// segment in order, prefix compressed against its predecessor, with the
// document frequency and the .frq/.prx/skip pointers of its postings. The
// .tii file holds every indexInterval-th entry of the .tis file together
// with the .tis offset to resume from; readers load it into memory and
// binary search it before scanning at most indexInterval terms.
//
//	.tis  Magic, IndexInterval, SkipInterval, MaxSkipLevels, Entry*, Count
//	Entry PrefixLen, SuffixLen, Suffix, FieldNumber, DocFreq,
//	      FreqDelta, ProxDelta, SkipOffset?
//	.tii  Magic, IndexInterval, SkipInterval, MaxSkipLevels, IndexEntry*, Count
//	IndexEntry Entry, TisDelta
//
// SkipOffset is only present when DocFreq >= SkipInterval.
package terminfo
