// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import "testing"

const doc = `
&log
    debug = true,
/

&runtime
    implementation = 'mpi_alltoall',
    hints = 'pack',
    max_worker_per_val = 2,
    tolerance = 0.001,
/
`

func TestParse(t *testing.T) {
	nl, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b, ok := nl.Bool("log", "debug"); !ok || !b {
		t.Fatalf("log.debug = %v, %v; want true, true", b, ok)
	}
	if s, ok := nl.String("runtime", "implementation"); !ok || s != "mpi_alltoall" {
		t.Fatalf("runtime.implementation = %q, %v; want mpi_alltoall, true", s, ok)
	}
	if n, ok := nl.Int("runtime", "max_worker_per_val"); !ok || n != 2 {
		t.Fatalf("runtime.max_worker_per_val = %d, %v; want 2, true", n, ok)
	}
	if f, ok := nl.Float("runtime", "tolerance"); !ok || f != 0.001 {
		t.Fatalf("runtime.tolerance = %v, %v; want 0.001, true", f, ok)
	}
	if _, ok := nl.Int("runtime", "nope"); ok {
		t.Fatal("expected missing key to report not-ok")
	}
	if _, ok := nl.Int("nope", "debug"); ok {
		t.Fatal("expected missing namelist to report not-ok")
	}
}

func TestParseCoercesIntToFloat(t *testing.T) {
	nl, err := Parse("&r\n x = 5,\n/\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f, ok := nl.Float("r", "x"); !ok || f != 5 {
		t.Fatalf("Float(int key) = %v, %v; want 5, true", f, ok)
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := Parse("&r x = ,\n/\n"); err == nil {
		t.Fatal("expected syntax error")
	}
}
