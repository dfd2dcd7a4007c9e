// Copyright 2025 The dmpworks Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// progress renders a single line indicator rewritten in place with a
// carriage return. A nil writer disables all output.
type progress struct {
	out         io.Writer
	description string
	total       int
	started     time.Time
	lastLen     int
}

func newProgress(out io.Writer, description string, total int) *progress {
	return &progress{
		out:         out,
		description: description,
		total:       total,
		started:     time.Now(),
	}
}

// Update redraws the progress line. The postfix carries mode specific
// counters and may be empty.
func (p *progress) Update(done int64, postfix string) {
	if p.out == nil {
		return
	}
	elapsed := time.Since(p.started).Round(time.Second)
	line := fmt.Sprintf("%s: %d/%d files [%s]", p.description, done, p.total, elapsed)
	if postfix != "" {
		line += " " + postfix
	}
	// Blank out leftovers when the new line is shorter than the last one.
	// Lengths are counted in runes so multi-byte descriptions do not leave
	// stale cells behind.
	width := utf8.RuneCountInString(line)
	pad := ""
	if n := p.lastLen - width; n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.out, "\r%s%s", line, pad)
	p.lastLen = width
}

// Finish draws the final state and terminates the line.
func (p *progress) Finish(done int64, postfix string) {
	if p.out == nil {
		return
	}
	p.Update(done, postfix)
	fmt.Fprintln(p.out)
}
