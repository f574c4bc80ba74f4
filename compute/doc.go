// Package compute owns the GPU side of the anonymization pipeline.
//
// A [ResourceSet] creates, in dependency order, every object one pixelation
// pass needs and releases them in exactly the reverse order. A [Dispatcher]
// uploads frames into the set's staging buffer, records the copy, compute
// and layout transitions for one frame, and submits them guarded by the
// set's [Fence].
//
// Both descriptor set slots reference a single input/output image pair.
// The fence serializes every reuse: no upload, dispatch or readback starts
// before the previous submission has signaled. A fence wait that exceeds
// its timeout yields [*GPUHangError]; nothing in this package retries.
//
// A ResourceSet and its Dispatcher are driven by one goroutine.
package compute
