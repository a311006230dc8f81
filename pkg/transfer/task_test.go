package transfer

import (
	"testing"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers
)

func TestTaskCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	task := NewTask("t1", "s1", DirectionDownload, []FileSpec{{Size: 100}}, Config{})
	g.Expect(task.Cancelled()).To(BeFalse())

	task.Cancel()
	task.Cancel()

	g.Expect(task.Cancelled()).To(BeTrue())
	_, ok := <-task.Done()
	g.Expect(ok).To(BeFalse())
}

func TestRecordTransferredIsMonotonic(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	task := NewTask("t1", "s1", DirectionDownload, []FileSpec{{Size: 100}}, Config{})

	task.recordTransferred(50)
	task.recordTransferred(30) // regression must be ignored
	task.recordTransferred(80)

	progress := task.snapshotProgress(PhaseTransferring)
	g.Expect(progress.Transferred).To(BeEquivalentTo(80))
}

func TestAdvanceMaxUploadedPositionIgnoresOutOfOrderCompletion(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	task := NewTask("t1", "s1", DirectionUpload, []FileSpec{{Size: 300}}, Config{})

	// Chunk 2 finishes before chunk 1 (out-of-order completion).
	task.advanceMaxUploadedPosition(300)
	task.advanceMaxUploadedPosition(100)

	progress := task.snapshotProgress(PhaseTransferring)
	g.Expect(progress.Transferred).To(BeEquivalentTo(300))
}
