// Package harness runs notebook files cell by cell against an interpreter
// and turns driver results and output comparisons into verdicts.
//
// # Notebook Format
//
// Notebooks are read from YAML or CUE fixture files:
//
//	name: arithmetic
//	cells:
//	  - source: |
//	      print(1 + 1)
//	    outputs:
//	      - output_type: stream
//	        name: stdout
//	        text: "2\n"
//	  - cell_type: markdown
//	    source: "Prose is not executed."
//	  - source: |
//	      # NBVAL_RAISES_EXCEPTION
//	      raise ValueError("boom")
//	    tags: [slow]
//	    outputs:
//	      - output_type: error
//	        ename: ValueError
//	        evalue: boom
//
// Code cells are numbered from 0, skipping markdown cells. Each cell's
// policy is resolved once at load time from comment markers and tags.
//
// # Verdicts
//
// Every cell gets one of four verdicts:
//
//   - passed: executed and, if checked, matched its reference
//   - failed: timed out, raised unexpectedly, or mismatched
//   - skipped: the cell's policy skips it
//   - expected_failure: an earlier cell of the same file timed out
//
// After a timeout the interpreter state is unreliable, so later cells
// still run when the interpreter is alive but can no longer fail or pass
// the file. A dead interpreter is not restarted.
//
// # Usage
//
//	nb, err := harness.LoadNotebook("testdata/notebooks/arith.yaml", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := harness.RunFile(ctx, nb, transport, harness.DefaultOptions())
package harness
