/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package envpath expands environment variable references in user supplied
// paths. Both the Windows %NAME% form and the Unix $NAME / ${NAME} forms are
// understood on every platform, so a template written on one OS still
// resolves on another.
//
// References to unset variables are left in place verbatim. A broken
// template therefore shows up as an odd looking path instead of quietly
// pointing somewhere else.
package envpath

import (
	"os"
	"strings"
)

// LookupFunc reports the value of a variable and whether it is set.
type LookupFunc func(name string) (string, bool)

// Expand substitutes references using the process environment.
func Expand(s string) string {
	return ExpandWith(s, os.LookupEnv)
}

// ExpandWith substitutes references using lookup. The percent form is
// expanded first and its output is fed to the dollar form.
func ExpandWith(s string, lookup LookupFunc) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return expandDollar(expandPercent(s, lookup), lookup)
}

// expandPercent handles %NAME%. An empty name (%%) collapses to a single
// percent sign and an unterminated % is copied as is.
func expandPercent(s string, lookup LookupFunc) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '%' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], '%')
		if end < 0 {
			b.WriteByte('%')
			i++
			continue
		}
		name := s[i+1 : i+1+end]
		switch {
		case name == "":
			b.WriteByte('%')
		default:
			if v, ok := lookup(name); ok {
				b.WriteString(v)
			} else {
				b.WriteString("%" + name + "%")
			}
		}
		i += end + 2
	}
	return b.String()
}

// expandDollar handles ${NAME} and $NAME.
func expandDollar(s string, lookup LookupFunc) string {
	if strings.IndexByte(s, '$') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '$' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end >= 0 {
				name := s[i+2 : i+2+end]
				token := s[i : i+3+end]
				if v, ok := lookup(name); ok && name != "" {
					b.WriteString(v)
				} else {
					b.WriteString(token)
				}
				i += end + 3
				continue
			}
			// unterminated brace: keep the dollar, the rest is literal text
			b.WriteByte('$')
			i++
			continue
		}
		j := i + 1
		for j < len(s) && isNameByte(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			i++
			continue
		}
		name := s[i+1 : j]
		if v, ok := lookup(name); ok {
			b.WriteString(v)
		} else {
			b.WriteString("$" + name)
		}
		i = j
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
