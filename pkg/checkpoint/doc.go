// Package checkpoint records how far platform list pagination got, so an
// interrupted or throttled discovery run can continue from the same offset.
//
// Checkpoints live under the archive root:
//
//	<out>/.checkpoints/<biz>.checkpoint.json
//
// A checkpoint is removed once pagination reaches the reported total, so the
// next run starts from the newest article again. The list is ordered newest
// first, so articles published between runs shift older ones to higher
// offsets; resuming then re-reads a few entries, which the ledger absorbs.
package checkpoint
