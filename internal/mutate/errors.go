package mutate

import "fmt"

// PartialBatchError reports a batch where some writes failed and some
// succeeded. Exactly the succeeded records stay marked saved: the failed
// records' marks are reverted unless WithRetainFailedMarks is set, in which
// case failed records keep their optimistic mark.
type PartialBatchError struct {
	Saved  int
	Failed int
	// FailedKeys lists the records that could not be written, in batch order.
	FailedKeys []string
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%d saved, %d failed", e.Saved, e.Failed)
}

// TotalBatchError reports a batch where every write failed. The marks the
// batch added were rolled back. Last is the error of the final record.
type TotalBatchError struct {
	Failed int
	Last   error
}

func (e *TotalBatchError) Error() string {
	return fmt.Sprintf("0 saved, %d failed: %v", e.Failed, e.Last)
}

func (e *TotalBatchError) Unwrap() error {
	return e.Last
}
