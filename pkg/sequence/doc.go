// Package sequence compiles heterogeneous outbound content (text runs,
// media, motion and expression directives) into ordered performance
// sequences for the avatar client.
//
// The compiler attaches a motionType tag inferred from the accumulated
// text by a keyword-weighted matcher; the client resolves the tag
// against its local asset catalog. Media is resolved through the
// resource store when one is configured, with a file:// fallback
// otherwise. A StreamBuffer supports incremental text, flushing partial
// sequences at sentence boundaries.
package sequence
