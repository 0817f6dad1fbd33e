// Package resource governs the memory, worker and IO budgets of an index.
//
//   - Memory: the RAM buffer of the writer and the block cache charge their
//     allocations here. Charges never block; a denied charge is the signal
//     to flush.
//   - Workers: bounds how many segment readers open in parallel.
//   - IO: token bucket throttling flush and commit writes.
//
// All methods are safe on a nil *Controller, which imposes no limits.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   64 << 20,
//	    IOLimitBytesPerSec: 32 << 20,
//	})
package resource
