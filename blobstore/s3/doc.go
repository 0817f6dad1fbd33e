// Package s3 stores index files in Amazon S3.
//
// Segment files are immutable and map one-to-one onto objects. S3 has no
// compare-and-swap, so concurrent writers publishing commit points should wrap
// the Store in a DDBCommitStore, which moves the CURRENT pointer into a
// DynamoDB table guarded by conditional writes.
package s3
