// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config provides read-only lookup over the namelist-format
// configuration every Instance is constructed from (spec.md §6,
// grounded on original_source/parser.cpp and ast.hpp).
package config

// View is the read-only lookup interface exec.Instance and every
// strategy constructor read their settings through. It is deliberately
// narrow: callers ask for a typed value by (namelist, key) and get
// back a "not present" bool rather than a zero value, so that a
// missing required key is the caller's error to raise (spec.md §4.10
// "configuration error"), not this package's.
type View interface {
	Int(namelist, key string) (int, bool)
	Float(namelist, key string) (float64, bool)
	String(namelist, key string) (string, bool)
	Bool(namelist, key string) (bool, bool)
}
