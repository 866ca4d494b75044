package ioworker

import "testing"

// Compile-time checks that every command variant satisfies its tagged-sum
// interface. These catch a dropped isIOCommand/isWorkerCommand/isAdminCommand
// method at build time rather than needing a runtime test.
var (
	_ IOCommand = BindItem{}
	_ IOCommand = BindAndConnect{}
	_ IOCommand = BindWithContext{}

	_ WorkerCommand = Bind{}
	_ WorkerCommand = Connect{}
	_ WorkerCommand = UnbindItem{}
	_ WorkerCommand = Schedule{}
	_ WorkerCommand = Message{}
	_ WorkerCommand = Disconnect{}
	_ WorkerCommand = Kill{}
	_ WorkerCommand = SwapHandler{}
	_ WorkerCommand = SummaryRequest{}

	_ adminCommand = RegisterServer{}
	_ adminCommand = UnregisterServer{}
	_ adminCommand = ServerShutdownRequest{}
	_ adminCommand = NewConnectionCmd{}
)

func TestEnvelope_ExactlyOneFieldSet(t *testing.T) {
	e := envelope{io: BindItem{}}
	if e.io == nil || e.worker != nil || e.admin != nil {
		t.Fatal("envelope with io set should have worker/admin nil")
	}
}
