// Package store implements index files on top of a blobstore.
//
// An Output is a buffered, sequential writer (variable length ints,
// big-endian fixed ints, length-prefixed strings).
// Every file written through a Directory ends with an 8 byte footer holding a
// magic number and the CRC32C of the preceding bytes; Input.Length reports
// the length without the footer.
//
// Outputs and Inputs use sticky errors: encoding methods do not return an
// error, the first failure is kept and reported by Err and Close.
//
//	out, err := dir.CreateOutput(ctx, "_0.frq")
//	out.WriteVInt(docDelta)
//	out.WriteBytes(payload)
//	if err := out.Close(); err != nil {
//		...
//	}
package store
