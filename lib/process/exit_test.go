// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	broken := errors.New("chain broken")
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"plain", errors.New("boom"), 1},
		{"coded", WithCode(2, broken), 2},
		{"wrapped coded", fmt.Errorf("verify: %w", WithCode(3, broken)), 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var output bytes.Buffer
			if code := report(&output, test.err); code != test.code {
				t.Errorf("code = %d, want %d", code, test.code)
			}
			if want := "error: " + test.err.Error() + "\n"; output.String() != want {
				t.Errorf("output = %q, want %q", output.String(), want)
			}
		})
	}
}

func TestWithCode(t *testing.T) {
	if WithCode(2, nil) != nil {
		t.Error("WithCode(nil) is not nil")
	}
	inner := errors.New("inner")
	if err := WithCode(2, inner); !errors.Is(err, inner) {
		t.Error("WithCode does not unwrap")
	}
}
