package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbverify/internal/engine"
	"github.com/roach88/nbverify/internal/ir"
	"github.com/roach88/nbverify/internal/kernel"
	"github.com/roach88/nbverify/internal/kernel/fake"
	"github.com/roach88/nbverify/internal/testutil"
)

type recordingObserver struct {
	verdicts []Verdict
	poisoned []string
}

func (o *recordingObserver) CellFinished(_ string, v Verdict) { o.verdicts = append(o.verdicts, v) }
func (o *recordingObserver) FilePoisoned(nb string)           { o.poisoned = append(o.poisoned, nb) }

func testOptions() Options {
	opts := DefaultOptions()
	opts.RunIDs = testutil.NewFixedRunIDGenerator("run-1")
	opts.DriverOptions = []engine.DriverOption{engine.WithExecTimeout(2 * time.Second)}
	return opts
}

func notebook(cells ...ir.Cell) *Notebook {
	return &Notebook{Name: "test", Cells: cells}
}

func TestRunFileTimeoutPoisonsRemainingCells(t *testing.T) {
	tr := fake.New(
		fake.OK(fake.Stdout("1\n")),
		fake.Hang(),
		fake.OK(fake.Stdout("2\n")),
		fake.Raises("ValueError", "boom"),
		fake.HangForever(),
	)
	nb := &Notebook{Name: "timeouts", Cells: []ir.Cell{
		testutil.Cell(0, "print(1)", testutil.Stdout("1\n")),
		testutil.Cell(1, "while True: pass"),
		testutil.Cell(2, "print(2)", testutil.Stdout("2\n")),
		testutil.Cell(3, "raise ValueError('boom')"),
		testutil.Cell(4, "while True: pass"),
		testutil.Cell(5, "print(3)", testutil.Stdout("3\n")),
	}}
	obs := &recordingObserver{}
	opts := testOptions()
	opts.Observer = obs

	report, err := RunFile(context.Background(), nb, tr, opts)
	require.NoError(t, err)

	statuses := make([]Status, len(report.Verdicts))
	for i, v := range report.Verdicts {
		statuses[i] = v.Status
	}
	assert.Equal(t, []Status{
		StatusPassed,
		StatusFailed,
		StatusExpectedFailure,
		StatusExpectedFailure,
		StatusExpectedFailure,
		StatusExpectedFailure,
	}, statuses)
	assert.Equal(t, engine.ErrCodeProtocolTimeout, report.Verdicts[1].Code)
	assert.True(t, report.Verdicts[2].WouldPass)
	assert.False(t, report.Verdicts[3].WouldPass)

	assert.True(t, report.Poisoned)
	assert.Equal(t, []string{"timeouts"}, obs.poisoned)
	assert.Len(t, obs.verdicts, 6)
	assert.Len(t, tr.Submitted(), 5, "cell 5 must not run on a stopped kernel")
	assert.Equal(t, "run-1", report.RunID)

	AssertGolden(t, "timeouts", report)
}

func TestRunFilePassesAndMismatches(t *testing.T) {
	tr := fake.New(
		fake.OK(fake.Stdout("hello\n")),
		fake.OK(fake.Stdout("world\n")),
	)
	nb := notebook(
		testutil.Cell(0, "print('hello')", testutil.Stdout("hello\n")),
		testutil.Cell(1, "print('world')", testutil.Stdout("there\n")),
	)

	report, err := RunFile(context.Background(), nb, tr, testOptions())
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, report.Verdicts[0].Status)
	assert.Len(t, report.Verdicts[0].OutputsHash, 64)

	failed := report.Verdicts[1]
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, engine.ErrCodeOutputMismatch, failed.Code)
	assert.Contains(t, failed.DiagnosticLines(), "mismatch 'text'")
	assert.False(t, report.OK())
	assert.Equal(t, Counts{Passed: 1, Failed: 1}, report.Counts())
}

func TestRunFileSkipsCells(t *testing.T) {
	tr := fake.New(fake.OK())
	skipped := testutil.Cell(0, "import missing_module")
	skipped.Policy.Skip = true
	nb := notebook(skipped, testutil.Cell(1, "pass"))

	report, err := RunFile(context.Background(), nb, tr, testOptions())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, report.Verdicts[0].Status)
	assert.Equal(t, StatusPassed, report.Verdicts[1].Status)
	assert.Equal(t, []string{"pass"}, tr.Submitted())
	assert.True(t, report.OK())
}

func TestRunFileIgnoredOutput(t *testing.T) {
	tr := fake.New(fake.OK(fake.Stdout("random 0.123\n")))
	cell := testutil.Cell(0, "print(random())", testutil.Stdout("random 0.987\n"))
	cell.Policy.Check = false

	report, err := RunFile(context.Background(), notebook(cell), tr, testOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, report.Verdicts[0].Status)
}

func TestRunFileExpectedExceptions(t *testing.T) {
	tr := fake.New(
		fake.Raises("ValueError", "foo"),
		fake.Raises("TypeError", "foo"),
		fake.OK(),
	)
	matching := testutil.Cell(0, "raise ValueError('foo')", testutil.Raised("ValueError", "foo"))
	mismatched := testutil.Cell(1, "raise TypeError('foo')", testutil.Raised("ValueError", "foo"))
	unraised := testutil.Cell(2, "pass")
	for _, c := range []*ir.Cell{&matching, &mismatched, &unraised} {
		c.Policy.CheckException = true
	}

	report, err := RunFile(context.Background(), notebook(matching, mismatched, unraised), tr, testOptions())
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, report.Verdicts[0].Status)

	assert.Equal(t, StatusFailed, report.Verdicts[1].Status)
	lines := report.Verdicts[1].DiagnosticLines()
	assert.Contains(t, lines, "mismatch 'ename'")
	assert.Contains(t, lines, "ValueError")
	assert.Contains(t, lines, "TypeError")

	assert.Equal(t, StatusFailed, report.Verdicts[2].Status)
	assert.Equal(t, engine.ErrCodeMissingException, report.Verdicts[2].Code)
}

func TestRunFileUnexpectedException(t *testing.T) {
	tr := fake.New(fake.Raises("ZeroDivisionError", "division by zero"), fake.OK())
	nb := notebook(testutil.Cell(0, "1/0"), testutil.Cell(1, "pass"))

	report, err := RunFile(context.Background(), nb, tr, testOptions())
	require.NoError(t, err)

	v := report.Verdicts[0]
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, engine.ErrCodeInterpreterError, v.Code)
	assert.Contains(t, v.Traceback, "ZeroDivisionError: division by zero")
	assert.Equal(t, StatusPassed, report.Verdicts[1].Status, "an exception does not poison the file")
	assert.False(t, report.Poisoned)
}

func TestRunFileDrainTimeoutPoisons(t *testing.T) {
	tr := fake.New(
		fake.Script{Reply: fake.Reply("ok"), Broadcast: []kernel.Message{fake.Stdout("partial\n")}},
		fake.OK(),
	)
	nb := notebook(testutil.Cell(0, "print('partial')"), testutil.Cell(1, "pass"))

	report, err := RunFile(context.Background(), nb, tr, testOptions())
	require.NoError(t, err)

	assert.Equal(t, engine.ErrCodeDrainTimeout, report.Verdicts[0].Code)
	assert.Equal(t, StatusExpectedFailure, report.Verdicts[1].Status)
	assert.True(t, report.Verdicts[1].WouldPass)
}

func TestRunFileAbortedRequestIsFatal(t *testing.T) {
	tr := fake.New(fake.OK(), fake.Aborted(), fake.OK())
	nb := notebook(testutil.Cell(0, "pass"), testutil.Cell(1, "pass"), testutil.Cell(2, "pass"))

	report, err := RunFile(context.Background(), nb, tr, testOptions())
	require.Error(t, err)
	assert.True(t, engine.IsFatalError(err))

	require.NotNil(t, report)
	assert.Len(t, report.Verdicts, 2)
	assert.Equal(t, engine.ErrCodeAbortedRequest, report.Verdicts[1].Code)
	assert.NotEmpty(t, report.Error)
	assert.False(t, report.OK())
}

func TestRunFileMeasuresDurationWithDriverClock(t *testing.T) {
	tr := fake.New(fake.OK(fake.Stdout("1\n")))
	skipped := testutil.Cell(1, "# NBVAL_SKIP")
	skipped.Policy.Skip = true
	nb := notebook(testutil.Cell(0, "print(1)", testutil.Stdout("1\n")), skipped)

	obs := &recordingObserver{}
	opts := testOptions()
	opts.Observer = obs
	opts.DriverOptions = append(opts.DriverOptions, engine.WithClock(testutil.NewStepClock(time.Second)))

	report, err := RunFile(context.Background(), nb, tr, opts)
	require.NoError(t, err)

	// Start, exec deadline, remaining time, end: three steps elapse.
	assert.Equal(t, 3*time.Second, report.Verdicts[0].Duration)
	assert.Equal(t, time.Duration(0), report.Verdicts[1].Duration)
	require.Len(t, obs.verdicts, 2)
	assert.Equal(t, 3*time.Second, obs.verdicts[0].Duration)
}
